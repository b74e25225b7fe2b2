package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bt-tracker-checker/config"
)

// placeholder 20 byte value used for both info_hash and peer_id
var zeroID = strings.Repeat("\x00", 20)

const maxDrainBytes = 64 << 10

// HTTPProber issues one announce-shaped GET per attempt.
type HTTPProber struct {
	timeout      time.Duration
	accepted     func(int) bool
	announcePort int
	newTransport TransportFactory
}

// NewHTTPProber creates an HTTP prober from the probe configuration.
// A nil factory means direct connections.
func NewHTTPProber(cfg config.ProbeConfig, factory TransportFactory) *HTTPProber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if factory == nil {
		factory = func() (*http.Transport, error) {
			return CreateTransport(config.ProxyConfig{})
		}
	}
	port := cfg.AnnouncePort
	if port == 0 {
		port = 6881
	}
	accepted := cfg.IsAcceptedStatus
	if len(cfg.AcceptedStatus) == 0 {
		accepted = func(code int) bool { return code == http.StatusOK || code == http.StatusForbidden }
	}
	return &HTTPProber{
		timeout:      timeout,
		accepted:     accepted,
		announcePort: port,
		newTransport: factory,
	}
}

// AnnounceURL merges the placeholder announce parameters into rawURL's query.
func AnnounceURL(rawURL string, port int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("info_hash", zeroID)
	q.Set("peer_id", zeroID)
	q.Set("port", strconv.Itoa(port))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", "0")
	q.Set("compact", "1")
	q.Set("event", "started")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ProbeHTTP sends the announce request and checks the status code.
func (p *HTTPProber) ProbeHTTP(ctx context.Context, rawURL string) Outcome {
	target, err := AnnounceURL(rawURL, p.announcePort)
	if err != nil {
		return Defect(fmt.Errorf("http probe called with unparsable url %q: %w", rawURL, err))
	}

	transport, err := p.newTransport()
	if err != nil {
		return Defect(fmt.Errorf("failed to create http transport: %w", err))
	}
	// each attempt owns its transport; drop its pooled connections on return
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: p.timeout}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Defect(fmt.Errorf("failed to build request for %q: %w", rawURL, err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return Failure(newProbeError(rawURL, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if !p.accepted(resp.StatusCode) {
		return Failure(&ProbeError{
			Type:       ErrorTypeHTTPStatus,
			Endpoint:   rawURL,
			StatusCode: resp.StatusCode,
		})
	}
	return Success()
}
