package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/retry"
	"bt-tracker-checker/internal/tracker"
)

type stubUDP struct{}

func (stubUDP) ProbeUDP(context.Context, string, int) tracker.Outcome {
	return tracker.Failure(&tracker.ProbeError{Type: tracker.ErrorTypeTimeout, Err: context.DeadlineExceeded})
}

func newTestCLI(t *testing.T, stdout io.Writer) *cli {
	t.Helper()
	cfg := config.Default()
	cfg.Output.DisableProgress = true
	cfg.Retry.MaxAttempts = 1
	cfg.Probe.Timeout = time.Second

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &cli{
		cfg: cfg,
		dispatcher: checker.NewDispatcher(
			stubUDP{},
			tracker.NewHTTPProber(cfg.Probe, nil),
			retry.NewPolicy(cfg.Retry, logger),
		),
		logger: logger,
		stdout: stdout,
		stderr: io.Discard,
	}
}

func TestCLI_CheckPrintsStatusLinesAndReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := newTestCLI(t, &out)

	announce := srv.URL + "/announce"
	err := c.check(context.Background(), []string{announce, "udp://silent.example:6969"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Success! "+announce+"\n")
	assert.Contains(t, text, "udp://silent.example:6969: 超时错误")

	good := strings.Index(text, "Good Urls")
	bad := strings.Index(text, "Bad Urls")
	require.True(t, good >= 0 && bad > good)
	assert.Contains(t, text[good:bad], announce)
	assert.Contains(t, text[bad:], "udp://silent.example:6969 | ")
}

func TestCLI_AllUnreachableIsNotAnError(t *testing.T) {
	var out bytes.Buffer
	c := newTestCLI(t, &out)
	c.cfg.Output.Quiet = true

	err := c.check(context.Background(), []string{"udp://a.example:1", "ftp://b.example"})

	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Success!")
	assert.Contains(t, out.String(), "ftp://b.example | ")
}
