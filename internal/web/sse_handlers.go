package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bt-tracker-checker/internal/events"
)

const ssePingInterval = 15 * time.Second

// handleSSE streams run events as Server-Sent Events.
// ?events=probe_completed,run_finished restricts the stream to those types.
func (ws *WebServer) handleSSE(c *gin.Context) {
	if ws.eventBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus disabled"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	filter := parseEventFilter(c.Query("events"))

	ch, unsubscribe := ws.eventBus.Subscribe(64)
	defer unsubscribe()

	ws.logger.Debug("SSE客户端已连接", "client_id", clientID)

	if err := writeSSE(c, "connection", map[string]interface{}{
		"status":    "established",
		"client_id": clientID,
		"timestamp": time.Now().Format("2006-01-02 15:04:05"),
	}); err != nil {
		return
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			if err := writeSSE(c, string(ev.Type), ev); err != nil {
				ws.logger.Debug("SSE事件发送失败", "client_id", clientID, "error", err)
				return
			}

		case <-ticker.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()

		case <-ctx.Done():
			ws.logger.Debug("SSE客户端断开连接", "client_id", clientID)
			return

		case <-ws.done:
			return
		}
	}
}

func parseEventFilter(param string) map[events.EventType]bool {
	if param == "" {
		return nil
	}
	filter := make(map[events.EventType]bool)
	for _, name := range strings.Split(param, ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter[events.EventType(name)] = true
		}
	}
	return filter
}

func writeSSE(c *gin.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
