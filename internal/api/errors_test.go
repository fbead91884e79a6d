package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

// newResponse creates a minimal *http.Response for testing errorFromResponse.
func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestErrorMapping_5xx_ErrServer(t *testing.T) {
	for _, code := range []int{500, 502, 503, 504} {
		err := errorFromResponse(newResponse(code, "server error"))
		if !errors.Is(err, ErrServer) {
			t.Errorf("expected errors.Is(err, ErrServer) for status %d, got false", code)
		}
	}
}

func TestErrorMapping_JSONMessageExtracted(t *testing.T) {
	err := errorFromResponse(newResponse(400, `{"message":"Unknown metric name - no.such.metric","success":false}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *APIError")
	}
	if apiErr.Message != "Unknown metric name - no.such.metric" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if !errors.Is(err, ErrBadRequest) {
		t.Error("expected errors.Is(err, ErrBadRequest)")
	}
}

func TestErrorMapping_EmptyBodyUsesStatusText(t *testing.T) {
	err := errorFromResponse(newResponse(404, ""))
	if !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("Error() = %q, want status text", err.Error())
	}
}

func TestAPIError_ErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 418, Message: "teapot"}
	if err.Error() != "api: HTTP 418: teapot" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestAPIError_SessionExpired(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   bool
	}{
		{400, "unknown context identifier", true},
		{403, "Invalid context 42", true},
		{404, "context 42 not found", true},
		{410, "context expired", true},
		{400, "Unknown metric name", false},
		{500, "unknown context", false},
		{404, "not found", false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status, Message: tt.msg}
		if got := errors.Is(err, ErrSessionExpired); got != tt.want {
			t.Errorf("errors.Is(%d %q, ErrSessionExpired) = %v, want %v", tt.status, tt.msg, got, tt.want)
		}
	}
}

func TestConnectivityError_UnwrapAndHint(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("session: %w", &ConnectivityError{Op: "create context", Err: cause})

	if !errors.Is(err, ErrConnectivity) {
		t.Error("expected errors.Is(err, ErrConnectivity)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), RemediationHint) {
		t.Errorf("Error() = %q, want remediation hint", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"nil", nil, FailureNone},
		{"canceled", fmt.Errorf("api: GET /pmapi/fetch: %w", context.Canceled), FailureCanceled},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, FailureConnectivity},
		{"truncated body", fmt.Errorf("api: decode: %w", io.ErrUnexpectedEOF), FailureConnectivity},
		{"other", errors.New("boom"), FailurePermanent},
		{"deadline", context.DeadlineExceeded, FailureConnectivity},
		{"5xx", &APIError{StatusCode: 503, Message: "unavailable"}, FailureConnectivity},
		{"expired", &APIError{StatusCode: 400, Message: "unknown context"}, FailureSessionExpired},
		{"unknown metric", &APIError{StatusCode: 400, Message: "Unknown metric name"}, FailureUnknownMetric},
		{"404 metric", &APIError{StatusCode: 404, Message: "no.such.metric"}, FailureUnknownMetric},
		{"bad request", &APIError{StatusCode: 400, Message: "missing names"}, FailureBadRequest},
		{"unauthorized", &APIError{StatusCode: 401, Message: "auth"}, FailurePermanent},
		{"wrapped connectivity", &ConnectivityError{Op: "fetch", Err: errors.New("x")}, FailureConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
