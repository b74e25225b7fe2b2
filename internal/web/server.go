package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/events"
	"bt-tracker-checker/internal/monitor"
)

// WebServer exposes the latest check report and live run events over HTTP.
type WebServer struct {
	server    *http.Server
	engine    *gin.Engine
	logger    *slog.Logger
	config    config.WebConfig
	eventBus  events.EventBus
	metrics   *monitor.Metrics
	startTime time.Time
	done      chan struct{}
	stopOnce  sync.Once

	mu      sync.RWMutex
	report  *checker.Report
	runErr  error
	running bool
	addr    string
}

// NewWebServer creates the status server. eventBus may be nil, in which case
// /api/stats and /api/events answer 503.
func NewWebServer(cfg config.WebConfig, eventBus events.EventBus, logger *slog.Logger) *WebServer {
	if logger == nil {
		logger = slog.Default()
	}
	// 设置gin为release模式以减少日志输出
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(ginLoggerMiddleware(logger))
	engine.Use(gin.Recovery())

	ws := &WebServer{
		engine:    engine,
		logger:    logger,
		config:    cfg,
		eventBus:  eventBus,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	ws.setupRoutes()
	return ws
}

// Handler returns the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.engine
}

// Start binds the listen address and serves in the background.
func (ws *WebServer) Start() error {
	addr := net.JoinHostPort(ws.config.Host, strconv.Itoa(ws.config.Port))
	ws.logger.Info(fmt.Sprintf("🌐 Web状态接口启动中... - 地址: %s", addr))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ws.server = &http.Server{
		Handler:     ws.engine,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 300 * time.Second,
		// SSE连接需要禁用写入超时
		WriteTimeout: 0,
	}

	ws.mu.Lock()
	ws.addr = ln.Addr().String()
	ws.mu.Unlock()

	go func() {
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Error(fmt.Sprintf("❌ Web服务器运行失败: %v", err))
		}
	}()

	ws.logger.Info(fmt.Sprintf("✅ Web状态接口启动成功！访问地址: http://%s", ws.Addr()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (ws *WebServer) Addr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.addr
}

// Stop优雅关闭Web服务器
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	ws.logger.Info("🛑 正在关闭Web服务器...")

	// SSE streams never go idle on their own
	ws.stopOnce.Do(func() { close(ws.done) })

	err := ws.server.Shutdown(ctx)
	if err != nil {
		ws.logger.Error(fmt.Sprintf("❌ Web服务器关闭失败: %v", err))
	} else {
		ws.logger.Info("✅ Web服务器已安全关闭")
	}
	return err
}

// SetMetrics attaches the cumulative probe metrics served by /api/stats.
func (ws *WebServer) SetMetrics(m *monitor.Metrics) {
	ws.metrics = m
}

// RunStarted marks a check run as in progress.
func (ws *WebServer) RunStarted() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.running = true
}

// SetReport stores the report of the latest completed run.
func (ws *WebServer) SetReport(r *checker.Report) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.report = r
	ws.runErr = nil
	ws.running = false
}

// SetRunError records that the latest run aborted. The previous report is kept.
func (ws *WebServer) SetRunError(err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.runErr = err
	ws.running = false
}

func (ws *WebServer) snapshot() (*checker.Report, bool, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.report, ws.running, ws.runErr
}

func (ws *WebServer) setupRoutes() {
	ws.engine.GET("/health", ws.handleHealth)

	api := ws.engine.Group("/api")
	{
		api.GET("/report", ws.handleReport)
		api.GET("/stats", ws.handleStats)
		api.GET("/events", ws.handleSSE)
	}
}

// ginLoggerMiddleware创建gin的日志中间件
func ginLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		msg := fmt.Sprintf("🌐 Web请求 %s %s %d %v %s",
			c.Request.Method, path, statusCode, latency, c.ClientIP())
		if statusCode >= 400 {
			logger.Warn(msg)
		} else {
			logger.Debug(msg)
		}
	}
}
