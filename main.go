package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bt-tracker-checker/config"
	"bt-tracker-checker/internal/checker"
	"bt-tracker-checker/internal/events"
	"bt-tracker-checker/internal/logging"
	"bt-tracker-checker/internal/monitor"
	"bt-tracker-checker/internal/output"
	"bt-tracker-checker/internal/retry"
	"bt-tracker-checker/internal/source"
	"bt-tracker-checker/internal/tracker"
	"bt-tracker-checker/internal/web"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	showVersion = flag.Bool("version", false, "Show version information")
	inputMethod = flag.String("input", "", "Tracker list source: pipe or file")
	listFile    = flag.String("file", "", "Tracker list path for the file input method")
	format      = flag.String("format", "", "Report format: text or table")
	watch       = flag.Bool("watch", false, "Re-run whenever the tracker list file changes")
	enableWeb   = flag.Bool("web", false, "Enable the web status API")
	webPort     = flag.Int("web-port", 8088, "Web status API port")
	noProgress  = flag.Bool("no-progress", false, "Disable the progress bar")
	initConfig  = flag.String("init-config", "", "Write a default configuration file to this path and exit")

	// Build-time variables (set via ldflags)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion {
		fmt.Printf("BT Tracker Checker\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	if *initConfig != "" {
		if err := config.SaveConfig(config.Default(), *initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			return 1
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return 0
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// stdout carries status lines and the report, logs go to stderr
	logger := logging.NewLogger(os.Stderr, cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := source.Load(cfg.Input, os.Stdin)
	if err != nil {
		logger.Error(fmt.Sprintf("❌ 读取tracker列表失败: %v", err))
		return 1
	}

	factory, err := tracker.NewTransportFactory(cfg.Proxy)
	if err != nil {
		logger.Error(fmt.Sprintf("❌ 代理配置无效: %v", err))
		return 1
	}
	logger.Info("🔧 " + tracker.GetProxyInfo(cfg.Proxy))

	dispatcher := checker.NewDispatcher(
		tracker.NewUDPProber(cfg.Probe.Timeout),
		tracker.NewHTTPProber(cfg.Probe, factory),
		retry.NewPolicy(cfg.Retry, logger),
	)

	eventBus := events.NewEventBus(logger)
	if err := eventBus.Start(); err != nil {
		logger.Error(fmt.Sprintf("❌ 事件总线启动失败: %v", err))
		return 1
	}
	defer eventBus.Stop()

	metrics := monitor.NewMetrics()

	var webServer *web.WebServer
	if cfg.Web.Enabled {
		webServer = web.NewWebServer(cfg.Web, eventBus, logger)
		webServer.SetMetrics(metrics)
		if err := webServer.Start(); err != nil {
			logger.Error(fmt.Sprintf("❌ Web状态接口启动失败: %v", err))
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			webServer.Stop(shutdownCtx)
		}()
	}

	c := &cli{
		cfg:        cfg,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		metrics:    metrics,
		web:        webServer,
		logger:     logger,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}

	// in watch mode an aborted run is logged and watching continues
	if err := c.check(ctx, list); err != nil && !cfg.Input.Watch {
		return 1
	}

	if cfg.Input.Watch {
		if err := c.watch(ctx); err != nil {
			logger.Error(fmt.Sprintf("❌ 列表监听失败: %v", err))
			return 1
		}
		return 0
	}

	if webServer != nil {
		logger.Info("🌐 检查完成，Web状态接口保持运行，按 Ctrl+C 退出")
		<-ctx.Done()
	}
	return 0
}

// loadConfig reads the config file, if any, and applies explicit flags on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["input"] {
		cfg.Input.Method = strings.ToLower(*inputMethod)
	}
	if set["file"] {
		cfg.Input.File = *listFile
		if !set["input"] {
			cfg.Input.Method = "file"
		}
	}
	if set["format"] {
		cfg.Output.Format = *format
	}
	if set["watch"] {
		cfg.Input.Watch = *watch
	}
	if set["web"] {
		cfg.Web.Enabled = *enableWeb
	}
	if set["web-port"] {
		cfg.Web.Port = *webPort
	}
	if set["no-progress"] {
		cfg.Output.DisableProgress = *noProgress
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// cli runs check passes and renders their results.
type cli struct {
	cfg        *config.Config
	dispatcher *checker.Dispatcher
	eventBus   events.EventBus
	metrics    *monitor.Metrics
	web        *web.WebServer
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

// check runs one pass over list and prints the report. A non-nil error means
// the run aborted on an internal defect.
func (c *cli) check(ctx context.Context, list []string) error {
	scheduler := checker.NewScheduler(c.dispatcher, c.cfg.Concurrency.Limit, c.logger)
	scheduler.SetEventBus(c.eventBus)
	if c.metrics != nil {
		scheduler.AddNotifier(c.metrics)
	}

	var progress output.Progress = output.NopProgress{}
	if !c.cfg.Output.DisableProgress && !c.cfg.Output.Quiet {
		progress = output.NewProgress(len(list), c.stderr)
	}
	scheduler.AddNotifier(output.ProgressNotifier(progress))
	if !c.cfg.Output.Quiet {
		scheduler.AddNotifier(output.NewStatusPrinter(c.stdout))
	}

	if c.web != nil {
		c.web.RunStarted()
	}

	report, err := scheduler.Run(ctx, list)
	progress.Done()
	if c.metrics != nil {
		c.metrics.RecordRun(report, err)
	}

	if err != nil {
		c.logger.Error(fmt.Sprintf("🐞 [检查] 运行因内部缺陷中止: %v", err))
		if c.web != nil {
			c.web.SetRunError(err)
		}
		return err
	}

	if err := output.WriteReport(c.stdout, report, c.cfg.Output.Format); err != nil {
		c.logger.Error(fmt.Sprintf("❌ 输出报告失败: %v", err))
	}
	if c.web != nil {
		c.web.SetReport(report)
	}
	return nil
}

// watch re-runs check every time the list file changes, until ctx ends.
func (c *cli) watch(ctx context.Context) error {
	watcher, err := source.NewListWatcher(c.cfg.Input, c.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()
	watcher.SetEventBus(c.eventBus)

	// only the newest pending list matters
	pending := make(chan []string, 1)
	watcher.AddChangeCallback(func(list []string) {
		select {
		case <-pending:
		default:
		}
		select {
		case pending <- list:
		default:
		}
	})

	c.logger.Info(fmt.Sprintf("👀 [列表监听] 正在监听 %s，文件变更后将重新检查", c.cfg.Input.File))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("🛑 收到退出信号，停止监听")
			return nil
		case list := <-pending:
			if err := c.check(ctx, list); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("⚠️ [列表监听] 本轮检查中止，继续监听")
			}
		}
	}
}
