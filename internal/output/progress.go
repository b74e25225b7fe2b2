// Package output renders progress, per-endpoint status lines and the final
// report of a check run.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"bt-tracker-checker/internal/checker"
)

// Progress observes how many endpoints have finished.
type Progress interface {
	Advance()
	Done()
}

// NopProgress discards progress updates.
type NopProgress struct{}

func (NopProgress) Advance() {}
func (NopProgress) Done()    {}

// BarProgress renders a single progress bar with go-pretty.
type BarProgress struct {
	pw       progress.Writer
	tracker  *progress.Tracker
	rendered chan struct{}
	once     sync.Once
}

// NewProgress starts rendering a bar for total endpoints to w.
func NewProgress(total int, w io.Writer) *BarProgress {
	pw := progress.NewWriter()
	pw.SetAutoStop(true)
	pw.SetTrackerLength(30)
	pw.SetOutputWriter(w)
	pw.SetUpdateFrequency(100 * time.Millisecond)

	tracker := &progress.Tracker{
		Message: fmt.Sprintf("Checking %d trackers", total),
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)

	p := &BarProgress{pw: pw, tracker: tracker, rendered: make(chan struct{})}
	go func() {
		defer close(p.rendered)
		pw.Render()
	}()
	return p
}

func (p *BarProgress) Advance() {
	p.tracker.Increment(1)
}

// Done marks the bar complete and waits briefly for the final frame.
func (p *BarProgress) Done() {
	p.once.Do(func() {
		p.tracker.MarkAsDone()
		select {
		case <-p.rendered:
		case <-time.After(2 * time.Second):
			p.pw.Stop()
		}
	})
}

// ProgressNotifier advances p for every finished endpoint.
func ProgressNotifier(p Progress) checker.Notifier {
	return checker.NotifierFunc(func(checker.Verdict) { p.Advance() })
}
