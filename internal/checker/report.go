package checker

import (
	"strings"
	"time"

	"bt-tracker-checker/internal/tracker"
)

// Verdict is the final classification of one endpoint.
type Verdict struct {
	Endpoint  tracker.Endpoint
	Reachable bool
	Attempts  int
	Failures  []error // every failure detail in attempt order, empty when reachable
	Elapsed   time.Duration
}

// Detail joins all failure details of an unreachable endpoint.
func (v Verdict) Detail() string {
	if v.Reachable || len(v.Failures) == 0 {
		return ""
	}
	parts := make([]string, len(v.Failures))
	for i, err := range v.Failures {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// StatusLine renders the one-line per-endpoint result.
func (v Verdict) StatusLine() string {
	if v.Reachable {
		return "Success! " + v.Endpoint.Raw
	}
	return v.Endpoint.Raw + ": " + v.Detail()
}

// Report partitions all verdicts of one run, keeping input order inside
// each partition.
type Report struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Reachable   []Verdict
	Unreachable []Verdict
}

// NewReport builds a report from verdicts given in input order.
func NewReport(runID string, startedAt time.Time, verdicts []Verdict) *Report {
	r := &Report{
		RunID:       runID,
		StartedAt:   startedAt,
		Duration:    time.Since(startedAt),
		Reachable:   make([]Verdict, 0, len(verdicts)),
		Unreachable: make([]Verdict, 0),
	}
	for _, v := range verdicts {
		if v.Reachable {
			r.Reachable = append(r.Reachable, v)
		} else {
			r.Unreachable = append(r.Unreachable, v)
		}
	}
	return r
}

// Total returns the number of endpoints in the report.
func (r *Report) Total() int {
	return len(r.Reachable) + len(r.Unreachable)
}

// VerdictView is the JSON form of a verdict.
type VerdictView struct {
	Endpoint  string   `json:"endpoint"`
	Scheme    string   `json:"scheme"`
	Reachable bool     `json:"reachable"`
	Attempts  int      `json:"attempts"`
	Errors    []string `json:"errors,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// ReportView is the JSON form of a report.
type ReportView struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	DurationMs  int64         `json:"duration_ms"`
	Total       int           `json:"total"`
	Reachable   []VerdictView `json:"reachable"`
	Unreachable []VerdictView `json:"unreachable"`
}

func (v Verdict) View() VerdictView {
	view := VerdictView{
		Endpoint:  v.Endpoint.Raw,
		Scheme:    v.Endpoint.Scheme.String(),
		Reachable: v.Reachable,
		Attempts:  v.Attempts,
		ElapsedMs: v.Elapsed.Milliseconds(),
	}
	for _, err := range v.Failures {
		view.Errors = append(view.Errors, err.Error())
	}
	return view
}

func (r *Report) View() ReportView {
	view := ReportView{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		DurationMs:  r.Duration.Milliseconds(),
		Total:       r.Total(),
		Reachable:   make([]VerdictView, 0, len(r.Reachable)),
		Unreachable: make([]VerdictView, 0, len(r.Unreachable)),
	}
	for _, v := range r.Reachable {
		view.Reachable = append(view.Reachable, v.View())
	}
	for _, v := range r.Unreachable {
		view.Unreachable = append(view.Unreachable, v.View())
	}
	return view
}
