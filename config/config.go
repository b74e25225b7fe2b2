package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Probe       ProbeConfig       `yaml:"probe"`
	Retry       RetryConfig       `yaml:"retry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Input       InputConfig       `yaml:"input"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
	Proxy       ProxyConfig       `yaml:"proxy"` // Outbound proxy for HTTP(S) trackers
	Web         WebConfig         `yaml:"web"`   // Status API configuration
}

type ProbeConfig struct {
	Timeout        time.Duration `yaml:"timeout"`         // Per-attempt timeout for UDP replies and HTTP requests
	AcceptedStatus []int         `yaml:"accepted_status"` // HTTP status codes that count as a live tracker
	AnnouncePort   int           `yaml:"announce_port"`   // Value of the "port" announce parameter
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"` // Pause between attempts, default: 0 (back-to-back)
}

type ConcurrencyConfig struct {
	Limit int `yaml:"limit"` // Maximum number of endpoints probed at the same time
}

type InputConfig struct {
	Method string `yaml:"method"` // "pipe" or "file"
	File   string `yaml:"file"`   // Tracker list path used by the "file" method
	Dedupe bool   `yaml:"dedupe"` // Drop repeated endpoints, keeping the first
	Watch  bool   `yaml:"watch"`  // Re-run whenever the list file changes (file method only)
}

type OutputConfig struct {
	Format          string `yaml:"format"`           // "text" or "table"
	DisableProgress bool   `yaml:"disable_progress"` // Do not render the progress bar
	Quiet           bool   `yaml:"quiet"`            // Do not print per-endpoint status lines
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ProxyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Type     string `yaml:"type"`     // "http", "https", "socks5"
	URL      string `yaml:"url"`      // Complete proxy URL
	Host     string `yaml:"host"`     // Proxy host
	Port     int    `yaml:"port"`     // Proxy port
	Username string `yaml:"username"` // Optional auth username
	Password string `yaml:"password"` // Optional auth password
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable status API, default: false
	Host    string `yaml:"host"`    // default: localhost
	Port    int    `yaml:"port"`    // default: 8088
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = 5 * time.Second
	}
	if len(c.Probe.AcceptedStatus) == 0 {
		// 403 usually means the tracker rejected the synthetic announce, not that it is down
		c.Probe.AcceptedStatus = []int{200, 403}
	}
	if c.Probe.AnnouncePort == 0 {
		c.Probe.AnnouncePort = 6881
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Concurrency.Limit == 0 {
		c.Concurrency.Limit = 32
	}
	if c.Input.Method == "" {
		c.Input.Method = "pipe"
	}
	c.Input.Method = strings.ToLower(c.Input.Method)
	if c.Input.File == "" {
		c.Input.File = "./urls.txt"
	}
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Web.Host == "" {
		c.Web.Host = "localhost"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8088
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Probe.Timeout < 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	for _, code := range c.Probe.AcceptedStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("accepted status %d is not a valid HTTP status code", code)
		}
	}
	if c.Probe.AnnouncePort < 1 || c.Probe.AnnouncePort > 65535 {
		return fmt.Errorf("announce port must be between 1 and 65535")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.Concurrency.Limit < 1 {
		return fmt.Errorf("concurrency limit must be at least 1")
	}

	if c.Input.Method != "pipe" && c.Input.Method != "file" {
		return fmt.Errorf("input method must be 'pipe' or 'file'")
	}
	if c.Input.Watch && c.Input.Method != "file" {
		return fmt.Errorf("watch mode requires the 'file' input method")
	}

	if c.Output.Format != "text" && c.Output.Format != "table" {
		return fmt.Errorf("output format must be 'text' or 'table'")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level must be one of debug, info, warn, error")
	}

	if c.Proxy.Enabled {
		if c.Proxy.Type == "" {
			return fmt.Errorf("proxy type is required when proxy is enabled")
		}
		if c.Proxy.Type != "http" && c.Proxy.Type != "https" && c.Proxy.Type != "socks5" {
			return fmt.Errorf("proxy type must be 'http', 'https', or 'socks5'")
		}
		if c.Proxy.URL == "" && (c.Proxy.Host == "" || c.Proxy.Port == 0) {
			return fmt.Errorf("proxy URL or host:port must be specified when proxy is enabled")
		}
	}

	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > 65535) {
		return fmt.Errorf("web port must be between 1 and 65535")
	}

	return nil
}

// IsAcceptedStatus reports whether an HTTP status code counts as a live tracker.
func (p ProbeConfig) IsAcceptedStatus(code int) bool {
	return slices.Contains(p.AcceptedStatus, code)
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
