// Package telemetry records OpenTelemetry spans and instruments for gateway
// requests, session creation and cache lookups.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/session"
)

const instrumentationName = "github.com/plexsphere/pcpmon"

// Instrument names.
const (
	MetricGatewayRequests = "pcpmon.gateway.requests"
	MetricGatewayLatency  = "pcpmon.gateway.latency"
	MetricSessionRenewals = "pcpmon.session.renewals"
	MetricCacheLookups    = "pcpmon.cache.lookups"
)

var (
	_ api.RequestObserver = (*Provider)(nil)
	_ session.Observer    = (*Provider)(nil)
	_ cache.Observer      = (*Provider)(nil)
)

// Provider holds the tracer and instruments. It implements the observer
// hooks of the gateway client, the session manager and the metadata cache.
type Provider struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	sessions metric.Int64Counter
	lookups  metric.Int64Counter
	shutdown []func(context.Context) error
}

// New builds a Provider from cfg. When telemetry is disabled the returned
// Provider records into no-op providers.
func New(ctx context.Context, cfg Config, version string) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.active() {
		return NewWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	spanExporter, metricExporter, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	p, err := NewWithProviders(tp, mp)
	if err != nil {
		return nil, err
	}
	p.shutdown = []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	return p, nil
}

func newExporters(ctx context.Context, cfg Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		se, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		me, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		return se, me, nil

	case ExporterOTLPHTTP:
		traceOpts := []otlptracehttp.Option{}
		metricOpts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			traceOpts = append(traceOpts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
			metricOpts = append(metricOpts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		se, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
		}
		me, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		return se, me, nil
	}
	return nil, nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
}

// NewWithProviders builds a Provider on top of existing providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	meter := mp.Meter(instrumentationName)
	p := &Provider{tracer: tp.Tracer(instrumentationName)}

	var err error
	if p.requests, err = meter.Int64Counter(MetricGatewayRequests,
		metric.WithDescription("pmproxy requests by path and status class")); err != nil {
		return nil, fmt.Errorf("telemetry: %s: %w", MetricGatewayRequests, err)
	}
	if p.latency, err = meter.Float64Histogram(MetricGatewayLatency,
		metric.WithDescription("pmproxy request latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("telemetry: %s: %w", MetricGatewayLatency, err)
	}
	if p.sessions, err = meter.Int64Counter(MetricSessionRenewals,
		metric.WithDescription("pmproxy contexts created, by reason and outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: %s: %w", MetricSessionRenewals, err)
	}
	if p.lookups, err = meter.Int64Counter(MetricCacheLookups,
		metric.WithDescription("Metadata cache lookups by operation and result")); err != nil {
		return nil, fmt.Errorf("telemetry: %s: %w", MetricCacheLookups, err)
	}
	return p, nil
}

// StartRequest opens a client span for a gateway GET and returns the
// callback that closes it and records the request instruments.
func (p *Provider) StartRequest(ctx context.Context, path string) (context.Context, func(status int, err error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pmproxy GET "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pmproxy.path", path)),
	)
	return ctx, func(status int, err error) {
		attrs := metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("status_class", statusClass(status)),
		)
		p.requests.Add(ctx, 1, attrs)
		p.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

		if status > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// SessionCreated counts context creations.
func (p *Provider) SessionCreated(ctx context.Context, _, reason string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String("outcome", outcome),
	))
}

// CacheLookup counts metadata cache lookups.
func (p *Provider) CacheLookup(ctx context.Context, op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
