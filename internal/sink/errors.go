package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FailureKind classifies a failed delivery for metrics and logs.
type FailureKind string

const (
	FailureTimeout          FailureKind = "timeout"
	FailureServerError      FailureKind = "server_error"
	FailureClientError      FailureKind = "client_error"
	FailureUnexpectedFormat FailureKind = "unexpected_format"
	FailureTransport        FailureKind = "transport"
	FailureRetryExhausted   FailureKind = "retry_exhausted"
)

// SinkError classifies sink call failures as transient/permanent.
type SinkError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *SinkError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "sink error")

	if e.Kind != "" {
		parts = append(parts, string(e.Kind))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SinkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf extracts the failure kind from a delivery error.
func KindOf(err error) FailureKind {
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
