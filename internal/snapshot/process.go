package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

// Sort keys accepted by Top.
const (
	SortCPU    = "cpu"
	SortMemory = "memory"
	SortIO     = "io"
)

// Process top limits.
const (
	MinProcessLimit        = 1
	MaxProcessLimit        = 50
	DefaultProcessLimit    = 10
	MinProcessInterval     = 500 * time.Millisecond
	MaxProcessInterval     = 5 * time.Second
	maxCmdlineLen          = 200
	cpuBoundShareOfMachine = 0.5
)

var (
	processInfoMetrics   = []string{"proc.psinfo.pid", "proc.psinfo.cmd", "proc.psinfo.psargs"}
	processMemoryMetrics = []string{"proc.memory.rss"}
	processCPUMetrics    = []string{"proc.psinfo.utime", "proc.psinfo.stime"}
	processIOMetrics     = []string{"proc.io.read_bytes", "proc.io.write_bytes"}
	processSystemMetrics = []string{"hinv.ncpu", "mem.physmem"}
)

// Process is the resource usage of one process. CPU and I/O fields are nil
// when they were not sampled.
type Process struct {
	PID                int      `json:"pid"`
	Command            string   `json:"command"`
	Cmdline            string   `json:"cmdline"`
	CPUPercent         *float64 `json:"cpu_percent,omitempty"`
	RSSBytes           uint64   `json:"rss_bytes"`
	RSSPercent         float64  `json:"rss_percent"`
	IOReadBytesPerSec  *float64 `json:"io_read_bytes_per_sec,omitempty"`
	IOWriteBytesPerSec *float64 `json:"io_write_bytes_per_sec,omitempty"`
}

// ProcessTop is the list of the heaviest processes by one resource.
type ProcessTop struct {
	Timestamp        time.Time                  `json:"timestamp"`
	Host             string                     `json:"host"`
	SortBy           string                     `json:"sort_by"`
	Interval         float64                    `json:"sample_interval"`
	Processes        []Process                  `json:"processes"`
	TotalMemoryBytes uint64                     `json:"total_memory_bytes"`
	NCPU             int                        `json:"ncpu"`
	Assessment       string                     `json:"assessment"`
	Missing          []metrics.MetricAnnotation `json:"missing,omitempty"`
}

// Top returns the limit heaviest processes on host sorted by sortBy.
func (b *Builder) Top(ctx context.Context, host, sortBy string, limit int, interval time.Duration) (*ProcessTop, error) {
	switch sortBy {
	case SortCPU, SortMemory, SortIO:
	default:
		return nil, metrics.InvalidParameter("sort_by", "%q must be one of cpu, memory, io", sortBy)
	}
	if limit < MinProcessLimit || limit > MaxProcessLimit {
		return nil, metrics.InvalidParameter("limit", "%d is outside [%d, %d]", limit, MinProcessLimit, MaxProcessLimit)
	}
	if err := validateSampleInterval(interval, MinProcessInterval, MaxProcessInterval); err != nil {
		return nil, err
	}

	names := appendUnique(nil, processInfoMetrics...)
	names = appendUnique(names, processMemoryMetrics...)
	switch sortBy {
	case SortCPU:
		names = appendUnique(names, processCPUMetrics...)
	case SortIO:
		names = appendUnique(names, processIOMetrics...)
	}
	names = appendUnique(names, processSystemMetrics...)

	report, err := b.source.Rates(ctx, host, names, interval)
	if err != nil {
		return nil, fmt.Errorf("snapshot: process top: %w", err)
	}

	top := BuildProcessTop(report, sortBy, limit)
	top.Timestamp = b.now().UTC()
	top.Interval = interval.Seconds()
	return top, nil
}

// BuildProcessTop builds, sorts and truncates the process list held in r.
func BuildProcessTop(r *metrics.RateReport, sortBy string, limit int) *ProcessTop {
	top := &ProcessTop{
		Host:             r.Host,
		SortBy:           sortBy,
		TotalMemoryBytes: uint64(firstBytes(r, "mem.physmem")),
		NCPU:             ncpu(r),
		Missing:          r.Missing,
	}

	procs := buildProcesses(r, sortBy, float64(top.TotalMemoryBytes))
	sort.SliceStable(procs, func(i, j int) bool {
		ki, kj := sortKey(procs[i], sortBy), sortKey(procs[j], sortBy)
		if ki != kj {
			return ki > kj
		}
		return procs[i].PID < procs[j].PID
	})
	if len(procs) > limit {
		procs = procs[:limit]
	}
	top.Processes = procs
	top.Assessment = assessProcesses(procs, sortBy, top.NCPU)
	return top
}

func buildProcesses(r *metrics.RateReport, sortBy string, totalMem float64) []Process {
	pids := byInstance(r, "proc.psinfo.pid")
	cmds := byInstance(r, "proc.psinfo.cmd")
	args := byInstance(r, "proc.psinfo.psargs")
	rss := byInstance(r, "proc.memory.rss")
	utime := byInstance(r, "proc.psinfo.utime")
	stime := byInstance(r, "proc.psinfo.stime")
	ioRead := byInstance(r, "proc.io.read_bytes")
	ioWrite := byInstance(r, "proc.io.write_bytes")

	procs := make([]Process, 0, len(pids))
	for inst, pidRes := range pids {
		pid := int(pidRes.Value)
		if pid <= 0 {
			continue
		}
		p := Process{PID: pid, Command: "unknown"}
		if c := cmds[inst].Text; c != "" {
			p.Command = c
		}
		p.Cmdline = p.Command
		if a := args[inst].Text; a != "" {
			p.Cmdline = a
		}
		if len(p.Cmdline) > maxCmdlineLen {
			p.Cmdline = p.Cmdline[:maxCmdlineLen]
		}

		if m, ok := rss[inst]; ok {
			p.RSSBytes = uint64(m.Value * unitScale(m.Unit))
		}
		if totalMem > 0 {
			p.RSSPercent = round(float64(p.RSSBytes)/totalMem*100, 1)
		}

		if sortBy == SortCPU || len(utime) > 0 {
			// utime and stime are milliseconds of CPU per second.
			pct := round((utime[inst].Value+stime[inst].Value)/10, 1)
			p.CPUPercent = &pct
		}
		if sortBy == SortIO || len(ioRead) > 0 {
			rd := round(ioRead[inst].Value*unitScale(ioRead[inst].Unit), 1)
			wr := round(ioWrite[inst].Value*unitScale(ioWrite[inst].Unit), 1)
			p.IOReadBytesPerSec = &rd
			p.IOWriteBytesPerSec = &wr
		}
		procs = append(procs, p)
	}
	return procs
}

func sortKey(p Process, sortBy string) float64 {
	switch sortBy {
	case SortCPU:
		return deref(p.CPUPercent)
	case SortMemory:
		return float64(p.RSSBytes)
	case SortIO:
		return deref(p.IOReadBytesPerSec) + deref(p.IOWriteBytesPerSec)
	}
	return 0
}

func assessProcesses(procs []Process, sortBy string, ncpu int) string {
	if len(procs) == 0 {
		return "No processes found"
	}
	top := procs[0]
	switch sortBy {
	case SortCPU:
		cpu := deref(top.CPUPercent)
		if cpu > float64(ncpu)*100*cpuBoundShareOfMachine {
			return fmt.Sprintf("%s is CPU-bound (%.0f%%)", top.Command, cpu)
		}
		return fmt.Sprintf("Top CPU: %s (%.0f%%)", top.Command, cpu)
	case SortMemory:
		return fmt.Sprintf("Top memory: %s (%.1f%%)", top.Command, top.RSSPercent)
	case SortIO:
		total := deref(top.IOReadBytesPerSec) + deref(top.IOWriteBytesPerSec)
		return fmt.Sprintf("Top I/O: %s (%.1f MB/s)", top.Command, total/1e6)
	}
	return "Top process: " + top.Command
}

// byInstance indexes the results of metric by instance.
func byInstance(r *metrics.RateReport, metric string) map[string]metrics.RateResult {
	out := make(map[string]metrics.RateResult)
	for _, res := range r.Instances(metric) {
		out[res.Instance] = res
	}
	return out
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
