// Package snapshot builds system health summaries on top of the metrics
// engine: CPU, memory, load, disk and network overviews, TCP/UDP protocol
// health and the top processes by resource.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

// Category names accepted by Take.
const (
	CategoryCPU     = "cpu"
	CategoryMemory  = "memory"
	CategoryLoad    = "load"
	CategoryDisk    = "disk"
	CategoryNetwork = "network"
)

// AllCategories is the default category set, in report order.
var AllCategories = []string{CategoryCPU, CategoryMemory, CategoryDisk, CategoryNetwork, CategoryLoad}

// Sample interval bounds for snapshots and network statistics.
const (
	MinSampleInterval     = 100 * time.Millisecond
	MaxSampleInterval     = 10 * time.Second
	DefaultSampleInterval = time.Second
)

var categoryMetrics = map[string][]string{
	CategoryCPU: {
		"kernel.all.cpu.user",
		"kernel.all.cpu.sys",
		"kernel.all.cpu.idle",
		"kernel.all.cpu.wait.total",
		"hinv.ncpu",
	},
	CategoryMemory: {
		"mem.physmem",
		"mem.util.available",
		"mem.util.free",
		"mem.util.cached",
		"mem.util.bufmem",
		"mem.util.swapTotal",
		"mem.util.swapFree",
	},
	CategoryLoad: {
		"kernel.all.load",
		"kernel.all.runnable",
		"kernel.all.nprocs",
		"hinv.ncpu",
	},
	CategoryDisk: {
		"disk.all.read_bytes",
		"disk.all.write_bytes",
		"disk.all.read",
		"disk.all.write",
	},
	CategoryNetwork: {
		"network.interface.in.bytes",
		"network.interface.out.bytes",
		"network.interface.in.packets",
		"network.interface.out.packets",
	},
}

// RateSource derives values for a set of metrics. *metrics.Engine
// satisfies it.
type RateSource interface {
	Rates(ctx context.Context, host string, names []string, interval time.Duration) (*metrics.RateReport, error)
}

// Snapshot is a point-in-time health overview of one host.
type Snapshot struct {
	Timestamp time.Time                  `json:"timestamp"`
	Host      string                     `json:"host"`
	Interval  float64                    `json:"sample_interval"`
	CPU       *CPU                       `json:"cpu,omitempty"`
	Memory    *Memory                    `json:"memory,omitempty"`
	Load      *Load                      `json:"load,omitempty"`
	Disk      *Disk                      `json:"disk,omitempty"`
	Network   *Network                   `json:"network,omitempty"`
	Missing   []metrics.MetricAnnotation `json:"missing,omitempty"`
}

// Builder produces snapshots from a RateSource.
type Builder struct {
	source RateSource
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(source RateSource, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		source: source,
		logger: logger.With("component", "snapshot"),
		now:    time.Now,
	}
}

// Take samples the metrics of categories on host over interval and builds
// the overview. An empty category list selects every category.
func (b *Builder) Take(ctx context.Context, host string, categories []string, interval time.Duration) (*Snapshot, error) {
	if len(categories) == 0 {
		categories = AllCategories
	}
	if err := validateSampleInterval(interval, MinSampleInterval, MaxSampleInterval); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(categories))
	var names []string
	for _, c := range categories {
		list, ok := categoryMetrics[c]
		if !ok {
			return nil, metrics.InvalidParameter("categories", "unknown category %q", c)
		}
		want[c] = true
		names = appendUnique(names, list...)
	}

	report, err := b.source.Rates(ctx, host, names, interval)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snap := &Snapshot{
		Timestamp: b.now().UTC(),
		Host:      report.Host,
		Interval:  interval.Seconds(),
		Missing:   report.Missing,
	}
	if want[CategoryCPU] {
		snap.CPU = BuildCPU(report)
	}
	if want[CategoryMemory] {
		snap.Memory = BuildMemory(report)
	}
	if want[CategoryLoad] {
		snap.Load = BuildLoad(report)
	}
	if want[CategoryDisk] {
		snap.Disk = BuildDisk(report)
	}
	if want[CategoryNetwork] {
		snap.Network = BuildNetwork(report)
	}
	b.logger.Debug("snapshot built", "host", snap.Host, "categories", categories, "missing", len(snap.Missing))
	return snap, nil
}

// CategoryMetrics returns the metric names sampled for category.
func CategoryMetrics(category string) ([]string, bool) {
	list, ok := categoryMetrics[category]
	if !ok {
		return nil, false
	}
	return append([]string(nil), list...), true
}

func validateSampleInterval(d, lo, hi time.Duration) error {
	if d < lo || d > hi {
		return metrics.InvalidParameter("interval", "%s is outside [%s, %s]", d, lo, hi)
	}
	return nil
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, n)
		}
	}
	return dst
}
