package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plexsphere/pcpmon/internal/snapshot"
)

// Record kinds identify the builder that produced a record.
const (
	KindSnapshot     = "snapshot"
	KindNetworkStats = "netstat"
	KindProcesses    = "processes"
)

// Record is one collected observation of a host.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Host      string          `json:"host"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
}

// Collector produces records for one kind of observation.
type Collector interface {
	Collect(ctx context.Context) ([]Record, error)
}

// Source abstracts the snapshot builders. *snapshot.Builder implements it.
type Source interface {
	Take(ctx context.Context, host string, categories []string, interval time.Duration) (*snapshot.Snapshot, error)
	NetworkStats(ctx context.Context, host string, interval time.Duration) (*snapshot.NetworkStats, error)
	Top(ctx context.Context, host, sortBy string, limit int, interval time.Duration) (*snapshot.ProcessTop, error)
}

// NewCollectors returns the collectors enabled by cfg. Defaults must already
// be applied to cfg.
func NewCollectors(cfg Config, src Source) []Collector {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{""}
	}
	collectors := []Collector{
		&SnapshotCollector{source: src, hosts: hosts, categories: cfg.Categories, interval: cfg.SampleInterval},
	}
	if cfg.NetworkStats {
		collectors = append(collectors, &NetworkStatsCollector{source: src, hosts: hosts, interval: cfg.SampleInterval})
	}
	if cfg.TopProcesses > 0 {
		collectors = append(collectors, &ProcessCollector{
			source:   src,
			hosts:    hosts,
			sortBy:   cfg.TopSortBy,
			limit:    cfg.TopProcesses,
			interval: cfg.SampleInterval,
		})
	}
	return collectors
}

// SnapshotCollector takes a system snapshot of every host.
type SnapshotCollector struct {
	source     Source
	hosts      []string
	categories []string
	interval   time.Duration
}

// Collect returns one record per host. Hosts that fail are skipped and their
// errors joined into the returned error.
func (c *SnapshotCollector) Collect(ctx context.Context) ([]Record, error) {
	return collectHosts(ctx, c.hosts, KindSnapshot, func(ctx context.Context, host string) (string, any, error) {
		s, err := c.source.Take(ctx, host, c.categories, c.interval)
		if err != nil {
			return "", nil, err
		}
		return s.Host, s, nil
	})
}

// NetworkStatsCollector samples protocol statistics of every host.
type NetworkStatsCollector struct {
	source   Source
	hosts    []string
	interval time.Duration
}

// Collect returns one record per host.
func (c *NetworkStatsCollector) Collect(ctx context.Context) ([]Record, error) {
	return collectHosts(ctx, c.hosts, KindNetworkStats, func(ctx context.Context, host string) (string, any, error) {
		s, err := c.source.NetworkStats(ctx, host, c.interval)
		if err != nil {
			return "", nil, err
		}
		return s.Host, s, nil
	})
}

// ProcessCollector samples the heaviest processes of every host.
type ProcessCollector struct {
	source   Source
	hosts    []string
	sortBy   string
	limit    int
	interval time.Duration
}

// Collect returns one record per host.
func (c *ProcessCollector) Collect(ctx context.Context) ([]Record, error) {
	return collectHosts(ctx, c.hosts, KindProcesses, func(ctx context.Context, host string) (string, any, error) {
		top, err := c.source.Top(ctx, host, c.sortBy, c.limit, c.interval)
		if err != nil {
			return "", nil, err
		}
		return top.Host, top, nil
	})
}

func collectHosts(ctx context.Context, hosts []string, kind string, take func(context.Context, string) (string, any, error)) ([]Record, error) {
	var (
		records []Record
		errs    []error
	)
	for _, host := range hosts {
		resolved, v, err := take(ctx, host)
		if err != nil {
			errs = append(errs, fmt.Errorf("watch: %s %s: %w", kind, hostLabel(host), err))
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("watch: %s %s: %w", kind, hostLabel(host), err))
			continue
		}
		records = append(records, Record{
			Timestamp: time.Now(),
			Host:      resolved,
			Kind:      kind,
			Data:      data,
		})
	}
	return records, errors.Join(errs...)
}

func hostLabel(host string) string {
	if host == "" {
		return "default host"
	}
	return host
}
