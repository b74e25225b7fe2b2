package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/events"
	"bt-tracker-checker/internal/monitor"
	"bt-tracker-checker/internal/tracker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReport() *checker.Report {
	return checker.NewReport("run-42", time.Now(), []checker.Verdict{
		{Endpoint: tracker.ParseEndpoint("udp://a.example:1337/announce"), Reachable: true, Attempts: 1},
		{Endpoint: tracker.ParseEndpoint("ftp://b.example"), Failures: []error{errors.New("scheme not supported")}},
	})
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ws := NewWebServer(config.WebConfig{}, nil, quietLogger())

	rec := get(t, ws.Handler(), "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["has_report"])

	ws.SetReport(testReport())
	ws.SetRunError(errors.New("internal defect"))
	rec = get(t, ws.Handler(), "/health", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-42", body["last_run_id"])
	assert.Equal(t, "internal defect", body["last_error"])
}

func TestReport_NotReady(t *testing.T) {
	ws := NewWebServer(config.WebConfig{}, nil, quietLogger())
	rec := get(t, ws.Handler(), "/api/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReport_JSON(t *testing.T) {
	ws := NewWebServer(config.WebConfig{}, nil, quietLogger())
	ws.SetReport(testReport())

	rec := get(t, ws.Handler(), "/api/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))

	var view checker.ReportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "run-42", view.RunID)
	assert.Equal(t, 2, view.Total)
	require.Len(t, view.Unreachable, 1)
	assert.Equal(t, []string{"scheme not supported"}, view.Unreachable[0].Errors)
}

func TestReport_Brotli(t *testing.T) {
	ws := NewWebServer(config.WebConfig{}, nil, quietLogger())
	ws.SetReport(testReport())

	rec := get(t, ws.Handler(), "/api/report", map[string]string{"Accept-Encoding": "gzip, br"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))

	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(rec.Body.Bytes())))
	require.NoError(t, err)
	var view checker.ReportView
	require.NoError(t, json.Unmarshal(plain, &view))
	assert.Equal(t, "udp://a.example:1337/announce", view.Reachable[0].Endpoint)
}

func TestAcceptsBrotli(t *testing.T) {
	assert.True(t, acceptsBrotli("br"))
	assert.True(t, acceptsBrotli("gzip, deflate, BR;q=0.8"))
	assert.False(t, acceptsBrotli("gzip"))
	assert.False(t, acceptsBrotli("br;q=0"))
	assert.False(t, acceptsBrotli(""))
}

func TestStats(t *testing.T) {
	ws := NewWebServer(config.WebConfig{}, nil, quietLogger())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ws.Handler(), "/api/stats", nil).Code)

	bus := events.NewEventBus(quietLogger())
	require.NoError(t, bus.Start())
	defer bus.Stop()
	ws = NewWebServer(config.WebConfig{}, bus, quietLogger())

	metrics := monitor.NewMetrics()
	metrics.EndpointDone(testReport().Reachable[0])
	ws.SetMetrics(metrics)

	rec := get(t, ws.Handler(), "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events events.BusStats  `json:"events"`
		Probes monitor.Snapshot `json:"probes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Probes.Reachable)
	assert.Equal(t, 0, body.Events.Subscribers)
}

func TestSSE_StreamsFilteredEvents(t *testing.T) {
	bus := events.NewEventBus(quietLogger())
	require.NoError(t, bus.Start())
	defer bus.Stop()

	ws := NewWebServer(config.WebConfig{}, bus, quietLogger())
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?events=run_finished", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	assert.Equal(t, "connection", readEvent())

	bus.Publish(events.Event{Type: events.EventProbeCompleted, Data: map[string]interface{}{"endpoint": "udp://a:1"}})
	bus.Publish(events.Event{Type: events.EventRunFinished, Data: map[string]interface{}{"run_id": "run-42"}})

	assert.Equal(t, "run_finished", readEvent())
}

func TestStartStop(t *testing.T) {
	ws := NewWebServer(config.WebConfig{Host: "127.0.0.1", Port: 0}, nil, quietLogger())
	require.NoError(t, ws.Start())

	resp, err := http.Get("http://" + ws.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ws.Stop(ctx))
}
