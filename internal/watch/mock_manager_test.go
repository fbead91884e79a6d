package watch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/plexsphere/pcpmon/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockCollector records calls and returns configured results.
type mockCollector struct {
	mu      sync.Mutex
	calls   int
	records []Record
	err     error
}

func (m *mockCollector) Collect(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.records, m.err
}

func (m *mockCollector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockReporter records Report calls.
type mockReporter struct {
	mu    sync.Mutex
	calls [][]Record
	err   error

	// errOnce causes the first call to fail, then succeeds.
	errOnce bool
}

func (m *mockReporter) Report(_ context.Context, batch []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]Record(nil), batch...))
	if m.err != nil {
		err := m.err
		if m.errOnce {
			m.err = nil
		}
		return err
	}
	return nil
}

func (m *mockReporter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockReporter) batch(i int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// panicCollector is a Collector that panics on every Collect call.
type panicCollector struct {
	msg string
}

func (p *panicCollector) Collect(_ context.Context) ([]Record, error) {
	panic(p.msg)
}

// fakeSource answers every builder call with canned results and records the
// hosts it was asked about.
type fakeSource struct {
	mu       sync.Mutex
	hosts    []string
	failHost string
	err      error
}

func (f *fakeSource) record(host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	if host == f.failHost {
		return f.err
	}
	return nil
}

func resolve(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

func (f *fakeSource) Take(_ context.Context, host string, _ []string, interval time.Duration) (*snapshot.Snapshot, error) {
	if err := f.record(host); err != nil {
		return nil, err
	}
	return &snapshot.Snapshot{Host: resolve(host), Interval: interval.Seconds()}, nil
}

func (f *fakeSource) NetworkStats(_ context.Context, host string, _ time.Duration) (*snapshot.NetworkStats, error) {
	if err := f.record(host); err != nil {
		return nil, err
	}
	return &snapshot.NetworkStats{Host: resolve(host), Assessment: "Network protocol health is normal"}, nil
}

func (f *fakeSource) Top(_ context.Context, host, sortBy string, limit int, _ time.Duration) (*snapshot.ProcessTop, error) {
	if err := f.record(host); err != nil {
		return nil, err
	}
	return &snapshot.ProcessTop{Host: resolve(host), SortBy: sortBy, Processes: make([]snapshot.Process, 0, limit)}, nil
}

func testRecords(kind string, n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{Timestamp: time.Now(), Host: "localhost", Kind: kind, Data: []byte(`{}`)}
	}
	return recs
}
