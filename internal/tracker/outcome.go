package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrorType 探测失败的错误类型
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeNetwork
	ErrorTypeTimeout
	ErrorTypeProtocolValidation
	ErrorTypeHTTPStatus
	ErrorTypeUnsupportedScheme
	ErrorTypeInvalidEndpoint
	ErrorTypeDefect
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNetwork:
		return "网络"
	case ErrorTypeTimeout:
		return "超时"
	case ErrorTypeProtocolValidation:
		return "协议校验"
	case ErrorTypeHTTPStatus:
		return "HTTP状态码"
	case ErrorTypeUnsupportedScheme:
		return "不支持的协议"
	case ErrorTypeInvalidEndpoint:
		return "无效端点"
	case ErrorTypeDefect:
		return "内部缺陷"
	default:
		return "未知"
	}
}

// ProbeError is the failure detail of one probe attempt.
type ProbeError struct {
	Type       ErrorType
	Endpoint   string
	StatusCode int // only for ErrorTypeHTTPStatus
	Err        error
}

func (e *ProbeError) Error() string {
	switch {
	case e.Type == ErrorTypeHTTPStatus:
		return fmt.Sprintf("status code: %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s错误: %v", e.Type, e.Err)
	default:
		return e.Type.String() + "错误"
	}
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeUnknown
}

// ClassifyError maps a transport error to Timeout or Network.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	if strings.Contains(err.Error(), "i/o timeout") {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func newProbeError(endpoint string, err error) *ProbeError {
	return &ProbeError{Type: ClassifyError(err), Endpoint: endpoint, Err: err}
}

// OutcomeKind 单次尝试的结果类型
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	// OutcomeDefect signals a bug in the prober itself. It is never retried.
	OutcomeDefect
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeDefect:
		return "defect"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of a single probe attempt. Err is nil only for
// OutcomeSuccess.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func Failure(err error) Outcome { return Outcome{Kind: OutcomeFailure, Err: err} }

func Defect(err error) Outcome { return Outcome{Kind: OutcomeDefect, Err: err} }

func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// DefectError wraps a programmer-error signal raised while checking an endpoint.
type DefectError struct {
	Endpoint string
	Err      error
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("internal defect while checking %s: %v", e.Endpoint, e.Err)
}

func (e *DefectError) Unwrap() error {
	return e.Err
}
