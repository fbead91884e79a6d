package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/session"
)

const maxPatternLen = 256

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Engine is the query surface over the gateway: raw values, derived rates,
// namespace search and metric descriptions.
type Engine struct {
	cfg        Config
	transport  api.Transport
	sessions   Sessions
	cache      *cache.Cache
	classifier *Classifier
	sampler    *Sampler
	calc       Calculator
	logger     *slog.Logger
}

// NewEngine creates an Engine. The cache is shared by describe and search
// lookups.
func NewEngine(transport api.Transport, sessions Sessions, c *cache.Cache, cfg Config, logger *slog.Logger) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		transport:  transport,
		sessions:   sessions,
		cache:      c,
		classifier: NewClassifier(transport, sessions, c, logger),
		sampler:    NewSampler(transport, sessions, cfg.MinInterval, cfg.MaxInterval, logger),
		calc:       Calculator{Strict: cfg.StrictCounters, Logger: logger.With("component", "rates")},
		logger:     logger.With("component", "engine"),
	}, nil
}

// Sampler returns the engine's sampler.
func (e *Engine) Sampler() *Sampler { return e.sampler }

// Classifier returns the engine's classifier.
func (e *Engine) Classifier() *Classifier { return e.classifier }

// TargetHost returns the default host.
func (e *Engine) TargetHost() string { return e.cfg.TargetHost }

// IntervalBounds returns the accepted sampling interval range.
func (e *Engine) IntervalBounds() (time.Duration, time.Duration) {
	return e.cfg.MinInterval, e.cfg.MaxInterval
}

// ResolveHost maps an empty host to the default target and rejects hosts
// that are not allowed.
func (e *Engine) ResolveHost(host string) (string, error) {
	if host == "" {
		return e.cfg.TargetHost, nil
	}
	if !e.cfg.hostAllowed(host) {
		return "", InvalidParameter("host", "%q is not in the allowed hosts", host)
	}
	return host, nil
}

// QueryResult holds raw values from a single fetch.
type QueryResult struct {
	Host       string             `json:"host"`
	CapturedAt time.Time          `json:"captured_at"`
	Samples    []Sample           `json:"samples"`
	Missing    []MetricAnnotation `json:"missing,omitempty"`
}

// Query fetches the current raw values of names.
func (e *Engine) Query(ctx context.Context, host string, names []string) (*QueryResult, error) {
	if err := validateNames(names); err != nil {
		return nil, err
	}
	host, err := e.ResolveHost(host)
	if err != nil {
		return nil, err
	}
	set, err := e.sampler.FetchOnce(ctx, host, names)
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Host: host, CapturedAt: set.CapturedAt, Missing: set.Missing}
	for _, m := range set.Order {
		res.Samples = append(res.Samples, set.Samples(m)...)
	}
	return res, nil
}

// RateReport is the outcome of a Rates request.
type RateReport struct {
	Host       string             `json:"host"`
	Interval   time.Duration      `json:"interval"`
	Elapsed    time.Duration      `json:"elapsed"`
	CapturedAt time.Time          `json:"captured_at"`
	Results    []RateResult       `json:"results"`
	Missing    []MetricAnnotation `json:"missing,omitempty"`
}

// Lookup returns the result for (metric, instance).
func (r *RateReport) Lookup(metric, instance string) (RateResult, bool) {
	for _, res := range r.Results {
		if res.Metric == metric && res.Instance == instance {
			return res, true
		}
	}
	return RateResult{}, false
}

// First returns the value of the first result for metric, or 0.
func (r *RateReport) First(metric string) float64 {
	for _, res := range r.Results {
		if res.Metric == metric {
			return res.Value
		}
	}
	return 0
}

// Sum adds the values of every instance of metric.
func (r *RateReport) Sum(metric string) float64 {
	var total float64
	for _, res := range r.Results {
		if res.Metric == metric {
			total += res.Value
		}
	}
	return total
}

// Instances returns every result for metric.
func (r *RateReport) Instances(metric string) []RateResult {
	var out []RateResult
	for _, res := range r.Results {
		if res.Metric == metric {
			out = append(out, res)
		}
	}
	return out
}

// Has reports whether any result exists for metric.
func (r *RateReport) Has(metric string) bool {
	for _, res := range r.Results {
		if res.Metric == metric {
			return true
		}
	}
	return false
}

// Rates classifies names and derives their values. Counters are sampled
// twice, interval apart, and reported per second; when no counter is
// requested a single fetch is made.
func (e *Engine) Rates(ctx context.Context, host string, names []string, interval time.Duration) (*RateReport, error) {
	if err := validateNames(names); err != nil {
		return nil, err
	}
	if err := e.sampler.validateInterval(interval); err != nil {
		return nil, err
	}
	host, err := e.ResolveHost(host)
	if err != nil {
		return nil, err
	}

	report := &RateReport{Host: host, Interval: interval}
	descs := make(map[string]Descriptor, len(names))
	var known []string
	anyCounter := false
	for _, name := range names {
		d, err := e.classifier.Classify(ctx, host, name)
		if err != nil {
			if isUnknownMetric(err) {
				report.Missing = append(report.Missing, MetricAnnotation{Metric: name, Reason: ReasonUnknownMetric, Err: err})
				continue
			}
			return nil, err
		}
		descs[name] = d
		known = append(known, name)
		anyCounter = anyCounter || d.Kind == KindCounter
	}
	if len(known) == 0 {
		return report, nil
	}

	var first, second *SampleSet
	var elapsed time.Duration
	if anyCounter {
		first, second, elapsed, err = e.sampler.FetchWithInterval(ctx, host, known, interval)
	} else {
		first, err = e.sampler.FetchOnce(ctx, host, known)
		second = first
	}
	if err != nil {
		return nil, err
	}

	results, missing, err := e.calc.DeriveSet(first, second, elapsed, descs)
	if err != nil {
		return nil, err
	}
	report.Elapsed = elapsed
	report.CapturedAt = second.CapturedAt
	report.Results = results
	report.Missing = append(report.Missing, second.Missing...)
	report.Missing = append(report.Missing, missing...)
	return report, nil
}

// Search lists the metrics below pattern. Results are cached per host and
// pattern.
func (e *Engine) Search(ctx context.Context, host, pattern string) ([]Descriptor, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}
	host, err := e.ResolveHost(host)
	if err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, e.cache, cache.SearchKey(host, pattern), func(ctx context.Context) ([]Descriptor, error) {
		var out []Descriptor
		err := e.sessions.Do(ctx, host, func(ctx context.Context, s session.Session) error {
			resp, err := api.SearchMetrics(ctx, e.transport, s.ID, pattern)
			if err != nil {
				return err
			}
			out = make([]Descriptor, 0, len(resp.Metrics))
			for _, info := range resp.Metrics {
				out = append(out, descriptorFromInfo(info))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: search %q: %w", pattern, err)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}

// NamespaceReport lists the top-level namespaces of a host and the PMDAs
// its collector reports as running.
type NamespaceReport struct {
	Host        string   `json:"host"`
	Namespaces  []string `json:"namespaces"`
	ActivePMDAs []string `json:"active_pmdas"`
}

// pmdaStatusMetric has one instance per configured PMDA; 0 means running.
const pmdaStatusMetric = "pmcd.agent.status"

// Namespaces discovers the top-level namespaces and active PMDAs of host.
// The report is cached per host.
func (e *Engine) Namespaces(ctx context.Context, host string) (*NamespaceReport, error) {
	host, err := e.ResolveHost(host)
	if err != nil {
		return nil, err
	}
	return cache.GetOrFetch(ctx, e.cache, cache.NamespacesKey(host), func(ctx context.Context) (*NamespaceReport, error) {
		report := &NamespaceReport{Host: host, Namespaces: []string{}, ActivePMDAs: []string{}}

		seen := make(map[string]bool)
		err := e.sessions.Do(ctx, host, func(ctx context.Context, s session.Session) error {
			resp, err := api.SearchMetrics(ctx, e.transport, s.ID, "")
			if err != nil {
				return err
			}
			for _, info := range resp.Metrics {
				top, _, _ := strings.Cut(info.Name, ".")
				if top != "" && !seen[top] {
					seen[top] = true
					report.Namespaces = append(report.Namespaces, top)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: namespaces: %w", err)
		}
		sort.Strings(report.Namespaces)

		set, err := e.sampler.FetchOnce(ctx, host, []string{pmdaStatusMetric})
		if err != nil {
			return nil, fmt.Errorf("metrics: namespaces: %w", err)
		}
		for _, smp := range set.Samples(pmdaStatusMetric) {
			if smp.Instance != "" && !smp.Value.IsText && smp.Value.Number == 0 {
				report.ActivePMDAs = append(report.ActivePMDAs, smp.Instance)
			}
		}
		if len(set.Missing) > 0 {
			e.logger.Debug("pmda status unavailable", "host", host)
		}
		return report, nil
	})
}

// Describe returns the gateway's description of name.
func (e *Engine) Describe(ctx context.Context, host, name string) (Descriptor, error) {
	if err := validateNames([]string{name}); err != nil {
		return Descriptor{}, err
	}
	host, err := e.ResolveHost(host)
	if err != nil {
		return Descriptor{}, err
	}
	return e.classifier.Describe(ctx, host, name)
}

// Ping makes sure a session to host can be established.
func (e *Engine) Ping(ctx context.Context, host string) error {
	host, err := e.ResolveHost(host)
	if err != nil {
		return err
	}
	return e.sessions.Do(ctx, host, func(context.Context, session.Session) error { return nil })
}

func validateNames(names []string) error {
	if len(names) == 0 {
		return InvalidParameter("names", "at least one metric name is required")
	}
	for _, n := range names {
		if n == "" || len(n) > maxPatternLen || !namePattern.MatchString(n) {
			return InvalidParameter("names", "%q is not a valid metric name", n)
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" || len(pattern) > maxPatternLen {
		return InvalidParameter("pattern", "length must be between 1 and %d", maxPatternLen)
	}
	if !namePattern.MatchString(pattern) {
		return InvalidParameter("pattern", "%q may contain only letters, digits, '_', '.' and '-'", pattern)
	}
	return nil
}
