package tracker

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme 端点协议类型
type Scheme int

const (
	SchemeUnsupported Scheme = iota
	SchemeUDP
	SchemeHTTP
	SchemeHTTPS
)

func (s Scheme) String() string {
	switch s {
	case SchemeUDP:
		return "udp"
	case SchemeHTTP:
		return "http"
	case SchemeHTTPS:
		return "https"
	default:
		return "unsupported"
	}
}

// Endpoint is one tracker URL as read from the input list.
type Endpoint struct {
	Raw    string
	Scheme Scheme
	URL    *url.URL

	// Host and Port are only set for udp endpoints.
	Host string
	Port int

	// ParseErr is set when a udp endpoint cannot be split into host and port.
	ParseErr error
}

// ParseEndpoint classifies a raw endpoint string by scheme.
// It never fails: unknown schemes map to SchemeUnsupported and malformed udp
// endpoints carry ParseErr so the dispatcher can report them without probing.
func ParseEndpoint(raw string) Endpoint {
	ep := Endpoint{Raw: raw}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "udp://"):
		ep.Scheme = SchemeUDP
	case strings.HasPrefix(lower, "http://"):
		ep.Scheme = SchemeHTTP
	case strings.HasPrefix(lower, "https://"):
		ep.Scheme = SchemeHTTPS
	default:
		ep.Scheme = SchemeUnsupported
		return ep
	}

	u, err := url.Parse(raw)
	if err != nil {
		ep.ParseErr = err
		return ep
	}
	ep.URL = u

	if ep.Scheme == SchemeUDP {
		ep.Host, ep.Port, ep.ParseErr = splitUDPHostPort(u)
	}
	return ep
}

func splitUDPHostPort(u *url.URL) (string, int, error) {
	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", u.String())
	}
	portStr := u.Port()
	if portStr == "" {
		return "", 0, fmt.Errorf("missing port in %q", u.String())
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
