package api

import (
	"context"
	"errors"
	"io"
	"net"
)

// Failure indicates how a caller should handle a gateway error.
type Failure int

const (
	// FailureNone means no error.
	FailureNone Failure = iota
	// FailureConnectivity means the gateway could not be reached, timed out,
	// or answered with a 5xx.
	FailureConnectivity
	// FailureSessionExpired means the context token is no longer valid and a
	// renewal followed by a single retry is appropriate.
	FailureSessionExpired
	// FailureUnknownMetric means one or more names are not in the namespace.
	FailureUnknownMetric
	// FailureBadRequest means the gateway rejected the request parameters.
	FailureBadRequest
	// FailureCanceled means the caller's context was canceled.
	FailureCanceled
	// FailurePermanent covers authentication failures and any other response
	// that will not change by retrying.
	FailurePermanent
)

// String returns the failure name used in logs.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureConnectivity:
		return "connectivity"
	case FailureSessionExpired:
		return "session_expired"
	case FailureUnknownMetric:
		return "unknown_metric"
	case FailureBadRequest:
		return "bad_request"
	case FailureCanceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// Classify determines how an error returned by a Transport should be handled.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, ErrConnectivity) {
		return FailureConnectivity
	}
	if errors.Is(err, ErrSessionExpired) {
		return FailureSessionExpired
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
			return FailureConnectivity
		}
		return FailurePermanent
	}
	switch {
	case errors.Is(err, ErrServer):
		return FailureConnectivity
	case apiErr.unknownMetric():
		return FailureUnknownMetric
	case errors.Is(err, ErrBadRequest):
		return FailureBadRequest
	default:
		return FailurePermanent
	}
}

// IsSessionExpired reports whether err signals an unknown or expired context.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
