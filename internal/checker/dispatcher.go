package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bt-tracker-checker/internal/retry"
	"bt-tracker-checker/internal/tracker"
)

// UDPProber performs one UDP connect handshake attempt.
type UDPProber interface {
	ProbeUDP(ctx context.Context, host string, port int) tracker.Outcome
}

// HTTPProber performs one HTTP announce attempt.
type HTTPProber interface {
	ProbeHTTP(ctx context.Context, rawURL string) tracker.Outcome
}

var errSchemeNotSupported = errors.New("scheme not supported")

// Dispatcher routes an endpoint to the retried prober matching its scheme.
type Dispatcher struct {
	udp    UDPProber
	http   HTTPProber
	policy *retry.Policy
}

// NewDispatcher creates a dispatcher over the given probers and retry policy.
func NewDispatcher(udp UDPProber, http HTTPProber, policy *retry.Policy) *Dispatcher {
	return &Dispatcher{udp: udp, http: http, policy: policy}
}

// Check probes one endpoint and returns its verdict. The error is non-nil
// only for a *tracker.DefectError.
func (d *Dispatcher) Check(ctx context.Context, ep tracker.Endpoint) (Verdict, error) {
	start := time.Now()
	verdict := Verdict{Endpoint: ep}

	var attempt retry.Attempt
	switch ep.Scheme {
	case tracker.SchemeUDP:
		attempt = func(ctx context.Context) tracker.Outcome {
			return d.udp.ProbeUDP(ctx, ep.Host, ep.Port)
		}
	case tracker.SchemeHTTP, tracker.SchemeHTTPS:
		attempt = func(ctx context.Context) tracker.Outcome {
			return d.http.ProbeHTTP(ctx, ep.Raw)
		}
	default:
		// no retry, no network
		verdict.Failures = []error{&tracker.ProbeError{
			Type:     tracker.ErrorTypeUnsupportedScheme,
			Endpoint: ep.Raw,
			Err:      errSchemeNotSupported,
		}}
		return verdict, nil
	}

	if ep.ParseErr != nil {
		verdict.Failures = []error{&tracker.ProbeError{
			Type:     tracker.ErrorTypeInvalidEndpoint,
			Endpoint: ep.Raw,
			Err:      ep.ParseErr,
		}}
		return verdict, nil
	}

	rec := d.policy.Run(ctx, ep.Raw, attempt)

	verdict.Attempts = rec.Attempts
	verdict.Reachable = rec.Succeeded
	if !rec.Succeeded {
		verdict.Failures = rec.Failures
	}
	verdict.Elapsed = time.Since(start)

	if rec.Defect != nil {
		return verdict, &tracker.DefectError{Endpoint: ep.Raw, Err: rec.Defect}
	}
	return verdict, nil
}

// checkSafely runs Check and turns a panic inside the prober into a defect.
func (d *Dispatcher) checkSafely(ctx context.Context, ep tracker.Endpoint) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Verdict{Endpoint: ep}
			err = &tracker.DefectError{Endpoint: ep.Raw, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.Check(ctx, ep)
}
