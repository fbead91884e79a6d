package api

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	// maxResponseSize is the maximum decompressed response body size (32 MiB).
	// Per-process fetches on busy hosts are large; this still bounds gzip bombs.
	maxResponseSize = 32 * 1024 * 1024

	// userAgentPrefix is the User-Agent header prefix.
	userAgentPrefix = "pcpmon/"
)

// Transport performs GET requests against the gateway and decodes the JSON
// response into result. Non-2xx responses are returned as *APIError.
type Transport interface {
	Get(ctx context.Context, path string, params url.Values, result any) error
}

// RequestObserver is notified around every gateway request. StartRequest may
// return a derived context (for example carrying a span); the returned func is
// called once with the HTTP status (0 when no response arrived) and the error.
type RequestObserver interface {
	StartRequest(ctx context.Context, path string) (context.Context, func(status int, err error))
}

// Gateway is the HTTP client for the pmproxy REST API.
type Gateway struct {
	httpClient *http.Client
	baseURL    string
	version    string
	username   string
	password   string
	logger     *slog.Logger

	mu       sync.RWMutex
	observer RequestObserver
}

// NewGateway creates a new Gateway client with the given configuration.
func NewGateway(cfg Config, version string, logger *slog.Logger) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		},
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 8,
	}

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: transport,
	}

	if cfg.TLSInsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled", "component", "gateway")
	}

	return &Gateway{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    version,
		username:   cfg.Username,
		password:   cfg.Password,
		logger:     logger.With("component", "gateway"),
	}, nil
}

// SetObserver installs a RequestObserver. A nil observer disables observation.
func (g *Gateway) SetObserver(o RequestObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = o
}

func (g *Gateway) getObserver() RequestObserver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.observer
}

// BaseURL returns the normalized gateway base URL.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Get sends a GET request with the given query parameters and decodes the
// JSON response into result. A nil result discards the body.
func (g *Gateway) Get(ctx context.Context, path string, params url.Values, result any) (err error) {
	status := 0
	if obs := g.getObserver(); obs != nil {
		var done func(int, error)
		ctx, done = obs.StartRequest(ctx, path)
		defer func() { done(status, err) }()
	}

	resp, err := g.sendRequest(ctx, path, params)
	if err != nil {
		return fmt.Errorf("api: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse(resp)
		g.logger.Debug("gateway request failed", "path", path, "status", resp.StatusCode, "error", apiErr)
		return apiErr
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil
	}

	var reader io.Reader = io.LimitReader(resp.Body, maxResponseSize)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("api: gzip decompress response: %w", err)
		}
		defer gr.Close()
		reader = io.LimitReader(gr, maxResponseSize)
	}
	if err := json.NewDecoder(reader).Decode(result); err != nil {
		return fmt.Errorf("api: decode %s response: %w", path, err)
	}
	return nil
}

// sendRequest builds and executes a GET request with standard headers.
func (g *Gateway) sendRequest(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	target := g.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", userAgentPrefix+g.version)
	if g.username != "" {
		req.SetBasicAuth(g.username, g.password)
	}

	return g.httpClient.Do(req)
}
