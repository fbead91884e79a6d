package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// pmproxy REST paths.
const (
	PathContext = "/pmapi/context"
	PathFetch   = "/pmapi/fetch"
	PathMetric  = "/pmapi/metric"
)

// CreateContext asks the gateway for a new context bound to hostspec.
// pollTimeout is the idle period after which the gateway discards it.
func CreateContext(ctx context.Context, t Transport, hostspec string, pollTimeout time.Duration) (*ContextResponse, error) {
	if hostspec == "" {
		return nil, errors.New("api: create context: hostspec is required")
	}
	params := url.Values{}
	params.Set("hostspec", hostspec)
	if pollTimeout > 0 {
		secs := int64(pollTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		params.Set("polltimeout", strconv.FormatInt(secs, 10))
	}

	var resp ContextResponse
	if err := t.Get(ctx, PathContext, params, &resp); err != nil {
		return nil, err
	}
	if resp.ID() == "" {
		return nil, errors.New("api: create context: response missing context id")
	}
	return &resp, nil
}

// Fetch retrieves the current values of names within contextID.
func Fetch(ctx context.Context, t Transport, contextID string, names []string) (*FetchResponse, error) {
	if len(names) == 0 {
		return nil, errors.New("api: fetch: no metric names")
	}
	params := url.Values{}
	params.Set("context", contextID)
	params.Set("names", strings.Join(names, ","))

	var resp FetchResponse
	if err := t.Get(ctx, PathFetch, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupMetrics returns the metadata of the named metrics.
func LookupMetrics(ctx context.Context, t Transport, contextID string, names []string) (*MetricResponse, error) {
	if len(names) == 0 {
		return nil, errors.New("api: lookup metrics: no metric names")
	}
	params := url.Values{}
	params.Set("context", contextID)
	params.Set("names", strings.Join(names, ","))

	var resp MetricResponse
	if err := t.Get(ctx, PathMetric, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchMetrics returns the metadata of every metric below prefix.
func SearchMetrics(ctx context.Context, t Transport, contextID, prefix string) (*MetricResponse, error) {
	params := url.Values{}
	params.Set("context", contextID)
	if prefix != "" {
		params.Set("prefix", prefix)
	}

	var resp MetricResponse
	if err := t.Get(ctx, PathMetric, params, &resp); err != nil {
		return nil, fmt.Errorf("api: search %q: %w", prefix, err)
	}
	return &resp, nil
}
