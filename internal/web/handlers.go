package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"

	"bt-tracker-checker/internal/utils"
)

func (ws *WebServer) handleHealth(c *gin.Context) {
	report, running, runErr := ws.snapshot()

	resp := gin.H{
		"status":     "ok",
		"uptime":     utils.FormatElapsed(time.Since(ws.startTime)),
		"running":    running,
		"has_report": report != nil,
	}
	if report != nil {
		resp["last_run_id"] = report.RunID
		resp["reachable"] = len(report.Reachable)
		resp["total"] = report.Total()
	}
	if runErr != nil {
		resp["last_error"] = runErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// handleReport returns the latest report, brotli-compressed when the client
// accepts it.
func (ws *WebServer) handleReport(c *gin.Context) {
	report, _, _ := ws.snapshot()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed run yet"})
		return
	}

	body, err := json.Marshal(report.View())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !acceptsBrotli(c.GetHeader("Accept-Encoding")) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}

	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := bw.Write(body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := bw.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Encoding", "br")
	c.Header("Vary", "Accept-Encoding")
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (ws *WebServer) handleStats(c *gin.Context) {
	if ws.eventBus == nil && ws.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no statistics source"})
		return
	}
	resp := gin.H{}
	if ws.eventBus != nil {
		resp["events"] = ws.eventBus.GetStats()
	}
	if ws.metrics != nil {
		resp["probes"] = ws.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func acceptsBrotli(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding := strings.TrimSpace(part)
		if i := strings.IndexByte(coding, ';'); i >= 0 {
			if strings.TrimSpace(coding[i+1:]) == "q=0" {
				continue
			}
			coding = strings.TrimSpace(coding[:i])
		}
		if strings.EqualFold(coding, "br") {
			return true
		}
	}
	return false
}
