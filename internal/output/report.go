package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/utils"
)

const (
	FormatText  = "text"
	FormatTable = "table"
)

// StatusPrinter writes one status line per finished endpoint.
type StatusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStatusPrinter(w io.Writer) *StatusPrinter {
	return &StatusPrinter{w: w}
}

func (s *StatusPrinter) EndpointDone(v checker.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, v.StatusLine())
}

// WriteReport writes the final report in the given format.
func WriteReport(w io.Writer, report *checker.Report, format string) error {
	switch format {
	case FormatText, "":
		return writeText(w, report)
	case FormatTable:
		writeTables(w, report)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func writeText(w io.Writer, report *checker.Report) error {
	var b strings.Builder
	rule := strings.Repeat("=", 20)

	fmt.Fprintf(&b, "\nGood Urls\n%s\n", rule)
	for _, v := range report.Reachable {
		b.WriteString(v.Endpoint.Raw)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nBad Urls\n%s\n", rule)
	for _, v := range report.Unreachable {
		fmt.Fprintf(&b, "%s | %s\n", v.Endpoint.Raw, v.Detail())
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTables(w io.Writer, report *checker.Report) {
	good := table.NewWriter()
	good.SetOutputMirror(w)
	good.SetStyle(table.StyleLight)
	good.SetTitle("Good Urls %s", utils.FormatRatio(len(report.Reachable), report.Total()))
	good.AppendHeader(table.Row{"#", "Endpoint", "Scheme", "Attempts", "Elapsed"})
	for i, v := range report.Reachable {
		good.AppendRow(table.Row{i + 1, v.Endpoint.Raw, v.Endpoint.Scheme.String(), v.Attempts, utils.FormatElapsed(v.Elapsed)})
	}
	good.Render()

	bad := table.NewWriter()
	bad.SetOutputMirror(w)
	bad.SetStyle(table.StyleLight)
	bad.SetTitle("Bad Urls %s", utils.FormatRatio(len(report.Unreachable), report.Total()))
	bad.AppendHeader(table.Row{"#", "Endpoint", "Attempts", "Details"})
	for i, v := range report.Unreachable {
		bad.AppendRow(table.Row{i + 1, v.Endpoint.Raw, v.Attempts, v.Detail()})
	}
	bad.Render()
}
