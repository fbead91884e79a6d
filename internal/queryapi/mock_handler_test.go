package queryapi

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/plexsphere/pcpmon/internal/metrics"
	"github.com/plexsphere/pcpmon/internal/snapshot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockEngine records arguments and returns configured results.
type mockEngine struct {
	mu sync.Mutex

	query    *metrics.QueryResult
	rates    *metrics.RateReport
	search   []metrics.Descriptor
	describe metrics.Descriptor
	spaces   *metrics.NamespaceReport
	err      error
	pingErr  error

	lastHost     string
	lastNames    []string
	lastInterval time.Duration
	lastPattern  string
	lastName     string
}

func (m *mockEngine) Query(_ context.Context, host string, names []string) (*metrics.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost, m.lastNames = host, names
	return m.query, m.err
}

func (m *mockEngine) Rates(_ context.Context, host string, names []string, interval time.Duration) (*metrics.RateReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost, m.lastNames, m.lastInterval = host, names, interval
	return m.rates, m.err
}

func (m *mockEngine) Search(_ context.Context, host, pattern string) ([]metrics.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost, m.lastPattern = host, pattern
	return m.search, m.err
}

func (m *mockEngine) Describe(_ context.Context, host, name string) (metrics.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost, m.lastName = host, name
	return m.describe, m.err
}

func (m *mockEngine) Namespaces(_ context.Context, host string) (*metrics.NamespaceReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost = host
	return m.spaces, m.err
}

func (m *mockEngine) Ping(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHost = host
	return m.pingErr
}

// mockSnapshots records arguments and returns configured results.
type mockSnapshots struct {
	mu sync.Mutex

	snapshot *snapshot.Snapshot
	netstat  *snapshot.NetworkStats
	top      *snapshot.ProcessTop
	err      error

	lastCategories []string
	lastInterval   time.Duration
	lastSort       string
	lastLimit      int
}

func (m *mockSnapshots) Take(_ context.Context, _ string, categories []string, interval time.Duration) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCategories, m.lastInterval = categories, interval
	return m.snapshot, m.err
}

func (m *mockSnapshots) NetworkStats(_ context.Context, _ string, interval time.Duration) (*snapshot.NetworkStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInterval = interval
	return m.netstat, m.err
}

func (m *mockSnapshots) Top(_ context.Context, _ string, sortBy string, limit int, interval time.Duration) (*snapshot.ProcessTop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSort, m.lastLimit, m.lastInterval = sortBy, limit, interval
	return m.top, m.err
}
