package tracker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bt-tracker-checker/config"

	"golang.org/x/net/proxy"
)

// TransportFactory builds a fresh transport for one HTTP probe attempt.
type TransportFactory func() (*http.Transport, error)

// NewTransportFactory returns a factory honouring the proxy configuration.
// The proxy settings are validated once, up front.
func NewTransportFactory(cfg config.ProxyConfig) (TransportFactory, error) {
	if _, err := CreateTransport(cfg); err != nil {
		return nil, err
	}
	return func() (*http.Transport, error) {
		return CreateTransport(cfg)
	}, nil
}

// CreateTransport creates an HTTP transport, routed through the configured
// proxy when one is enabled.
func CreateTransport(cfg config.ProxyConfig) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0,
		MaxIdleConnsPerHost:   1,
		ForceAttemptHTTP2:     true,
	}

	if !cfg.Enabled {
		return transport, nil
	}

	proxyURL, err := ProxyURL(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5":
		socksDialer, err := proxy.FromURL(proxyURL, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
		}
		if cd, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported proxy type: %s", cfg.Type)
	}

	return transport, nil
}

// ProxyURL resolves the proxy URL from either the url field or host/port.
func ProxyURL(cfg config.ProxyConfig) (*url.URL, error) {
	raw := cfg.URL
	if raw == "" {
		raw = fmt.Sprintf("%s://%s", cfg.Type, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if cfg.Username != "" && u.User == nil {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u, nil
}

// GetProxyInfo describes the proxy for startup logs without leaking credentials.
func GetProxyInfo(cfg config.ProxyConfig) string {
	if !cfg.Enabled {
		return "代理未启用，将直接连接 HTTP tracker"
	}
	u, err := ProxyURL(cfg)
	if err != nil {
		return fmt.Sprintf("代理配置无效: %v", err)
	}
	return fmt.Sprintf("HTTP tracker 通过代理访问: %s://%s", u.Scheme, u.Host)
}
