package watch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Reporter receives batches of collected records.
type Reporter interface {
	Report(ctx context.Context, batch []Record) error
}

// Manager drives the collectors on a fixed cadence and buffers their records
// until the next report.
type Manager struct {
	cfg        Config
	collectors []Collector
	reporter   Reporter
	logger     *slog.Logger

	mu     sync.Mutex
	buffer []Record
}

// NewManager returns a Manager for collectors. Zero config fields take their
// defaults.
func NewManager(cfg Config, collectors []Collector, reporter Reporter, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:        cfg,
		collectors: collectors,
		reporter:   reporter,
		logger:     logger.With("component", "watch"),
	}
}

// RegisterCollector appends c to the collector list. Call it before Run.
func (m *Manager) RegisterCollector(c Collector) {
	m.collectors = append(m.collectors, c)
}

// Run samples every collector once, then again on each CollectInterval tick,
// and hands buffered records to the reporter on each ReportInterval tick.
// It returns ctx.Err() after a final flush.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("watching hosts",
		"hosts", len(m.cfg.Hosts),
		"collectors", len(m.collectors),
		"collect_interval", m.cfg.CollectInterval,
		"report_interval", m.cfg.ReportInterval,
	)

	m.collect(ctx)

	sampleTick := time.NewTicker(m.cfg.CollectInterval)
	reportTick := time.NewTicker(m.cfg.ReportInterval)
	defer sampleTick.Stop()
	defer reportTick.Stop()

	for {
		select {
		case <-sampleTick.C:
			m.collect(ctx)
		case <-reportTick.C:
			m.flush(ctx)
		case <-ctx.Done():
			// The run context is already done; the last flush gets a fresh one.
			m.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		}
	}
}

// collect runs one cycle over all collectors. A failing or panicking
// collector does not stop the others, and partial records are kept.
func (m *Manager) collect(ctx context.Context) {
	var cycle []Record
	for i, c := range m.collectors {
		records, err := m.safeCollect(ctx, c)
		if err != nil {
			m.logger.Warn("collection failed", "collector", i, "records", len(records), "error", err)
		}
		cycle = append(cycle, records...)
	}
	if len(cycle) == 0 {
		return
	}
	m.mu.Lock()
	m.buffer = append(m.buffer, cycle...)
	m.enforceCapacity()
	m.mu.Unlock()
	m.logger.Debug("cycle collected", "records", len(cycle))
}

func (m *Manager) safeCollect(ctx context.Context, c Collector) (records []Record, err error) {
	defer func() {
		if v := recover(); v != nil {
			records, err = nil, fmt.Errorf("watch: collector panic: %v\n%s", v, debug.Stack())
		}
	}()
	return c.Collect(ctx)
}

// enforceCapacity keeps at most 2*BatchSize records, discarding the oldest.
// The caller holds m.mu.
func (m *Manager) enforceCapacity() {
	excess := len(m.buffer) - 2*m.cfg.BatchSize
	if excess <= 0 {
		return
	}
	m.buffer = m.buffer[excess:]
	m.logger.Debug("buffer full, oldest records discarded", "count", excess)
}

// flush reports the buffer in chunks of BatchSize. When the reporter fails
// the unreported tail goes back in front of anything collected meanwhile.
func (m *Manager) flush(ctx context.Context) {
	pending := m.drain()
	for len(pending) > 0 {
		n := min(m.cfg.BatchSize, len(pending))
		if err := m.reporter.Report(ctx, pending[:n]); err != nil {
			m.logger.Warn("reporting failed, records retained", "records", len(pending), "error", err)
			m.requeue(pending)
			return
		}
		pending = pending[n:]
	}
}

func (m *Manager) drain() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.buffer
	m.buffer = nil
	return out
}

func (m *Manager) requeue(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(records, m.buffer...)
	m.enforceCapacity()
}
