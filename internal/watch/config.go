// Package watch periodically samples host snapshots and hands them to a
// reporter in batches.
package watch

import (
	"errors"
	"time"

	"github.com/plexsphere/pcpmon/internal/snapshot"
)

// DefaultCollectInterval is the default interval between collection cycles.
const DefaultCollectInterval = 30 * time.Second

// DefaultReportInterval is the default interval between reporter flushes.
const DefaultReportInterval = 60 * time.Second

// DefaultBatchSize is the default maximum number of records per report batch.
const DefaultBatchSize = 100

// Config holds the configuration of the watch loop.
type Config struct {
	// CollectInterval is the interval between collection cycles.
	// Must be at least 1s and longer than SampleInterval.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// ReportInterval is the interval between flushes to the reporter.
	// Must be >= CollectInterval.
	ReportInterval time.Duration `yaml:"report_interval"`

	// BatchSize is the maximum number of records per report batch.
	// Default: 100.
	BatchSize int `yaml:"batch_size"`

	// SampleInterval is the rate sampling interval of each snapshot.
	// Default: 1s.
	SampleInterval time.Duration `yaml:"sample_interval"`

	// Hosts lists the target hosts to watch. Empty means the default target.
	Hosts []string `yaml:"hosts"`

	// Categories restricts the snapshot categories. Empty means all.
	Categories []string `yaml:"categories"`

	// NetworkStats adds TCP/UDP protocol statistics to every cycle.
	NetworkStats bool `yaml:"network_stats"`

	// TopProcesses adds the N heaviest processes to every cycle. 0 disables.
	TopProcesses int `yaml:"top_processes"`

	// TopSortBy is the process sort key. Default: "cpu".
	TopSortBy string `yaml:"top_sort_by"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.CollectInterval == 0 {
		c.CollectInterval = DefaultCollectInterval
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = DefaultReportInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = snapshot.DefaultSampleInterval
	}
	if c.TopSortBy == "" {
		c.TopSortBy = snapshot.SortCPU
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.CollectInterval < time.Second {
		return errors.New("watch: config: CollectInterval must be at least 1s")
	}
	if c.ReportInterval < c.CollectInterval {
		return errors.New("watch: config: ReportInterval must be >= CollectInterval")
	}
	if c.BatchSize <= 0 {
		return errors.New("watch: config: BatchSize must be > 0")
	}
	if c.SampleInterval < snapshot.MinSampleInterval || c.SampleInterval > snapshot.MaxSampleInterval {
		return errors.New("watch: config: SampleInterval must be between 100ms and 10s")
	}
	if c.SampleInterval >= c.CollectInterval {
		return errors.New("watch: config: SampleInterval must be shorter than CollectInterval")
	}
	if c.TopProcesses < 0 || c.TopProcesses > snapshot.MaxProcessLimit {
		return errors.New("watch: config: TopProcesses must be between 0 and 50")
	}
	if c.TopProcesses > 0 && (c.SampleInterval < snapshot.MinProcessInterval || c.SampleInterval > snapshot.MaxProcessInterval) {
		return errors.New("watch: config: SampleInterval must be between 500ms and 5s when TopProcesses is set")
	}
	switch c.TopSortBy {
	case snapshot.SortCPU, snapshot.SortMemory, snapshot.SortIO:
	default:
		return errors.New("watch: config: TopSortBy must be cpu, memory or io")
	}
	return nil
}
