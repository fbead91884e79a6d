package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is the base error type for gateway HTTP errors.
// It supports errors.Is matching by status code and errors.As extraction.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the formatted error string.
func (e *APIError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is supports errors.Is matching by status code.
// ErrServer (500) matches any 5xx status code and ErrSessionExpired matches
// responses whose message reports an unknown or expired context.
// All other sentinels require an exact status code match.
func (e *APIError) Is(target error) bool {
	if target == ErrSessionExpired {
		return e.sessionExpired()
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.StatusCode == 500 && e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == t.StatusCode
}

// sessionExpired reports whether the gateway rejected the request because the
// context token it carried is unknown to it.
func (e *APIError) sessionExpired() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
	default:
		return false
	}
	msg := strings.ToLower(e.Message)
	if !strings.Contains(msg, "context") {
		return false
	}
	for _, marker := range []string{"unknown", "invalid", "expired", "not found", "no such"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// unknownMetric reports whether the gateway rejected a name it does not know.
func (e *APIError) unknownMetric() bool {
	if e.sessionExpired() {
		return false
	}
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "unknown metric") || strings.Contains(msg, "unknown pmns name") {
		return true
	}
	return e.StatusCode == http.StatusNotFound
}

// Sentinel errors for common HTTP error status codes.
var (
	ErrBadRequest   = &APIError{StatusCode: 400, Message: "bad request"}
	ErrUnauthorized = &APIError{StatusCode: 401, Message: "unauthorized"}
	ErrForbidden    = &APIError{StatusCode: 403, Message: "forbidden"}
	ErrNotFound     = &APIError{StatusCode: 404, Message: "not found"}
	ErrServer       = &APIError{StatusCode: 500, Message: "server error"}
)

// ErrSessionExpired signals that the gateway no longer knows the context
// token used for a request. It is consumed by the session manager and never
// returned to callers of the metrics engine.
var ErrSessionExpired = errors.New("api: session context unknown or expired")

// ErrConnectivity matches every *ConnectivityError.
var ErrConnectivity = errors.New("api: gateway unreachable")

// RemediationHint is appended to connectivity failures.
const RemediationHint = "verify the gateway is reachable (systemctl start pmproxy)"

// ConnectivityError reports that the gateway could not be reached or that the
// session renewal retry failed as well. It is fatal for the current call.
type ConnectivityError struct {
	Op  string
	Err error
}

// Error returns the formatted error string including the remediation hint.
func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("api: %s: %v; %s", e.Op, e.Err, RemediationHint)
}

// Unwrap returns the underlying cause.
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is makes every ConnectivityError match ErrConnectivity.
func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// maxErrorBody is the maximum number of bytes read from an error response body.
const maxErrorBody = 4096

// errorFromResponse creates an *APIError from an HTTP response.
// pmproxy reports failures as {"message": "...", "success": false}; when the
// body has that shape the message is extracted, otherwise the raw body is used.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
