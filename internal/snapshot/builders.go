package snapshot

import (
	"fmt"
	"math"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

// CPU is the share of CPU time spent in each state over the sample interval.
type CPU struct {
	UserPercent   float64 `json:"user_percent"`
	SystemPercent float64 `json:"system_percent"`
	IdlePercent   float64 `json:"idle_percent"`
	IOWaitPercent float64 `json:"iowait_percent"`
	NCPU          int     `json:"ncpu"`
	Assessment    string  `json:"assessment"`
}

// Memory is the memory usage in bytes.
type Memory struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	FreeBytes      uint64  `json:"free_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	CachedBytes    uint64  `json:"cached_bytes"`
	BuffersBytes   uint64  `json:"buffers_bytes"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes"`
	SwapTotalBytes uint64  `json:"swap_total_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	Assessment     string  `json:"assessment"`
}

// Load holds the load averages and scheduler counts.
type Load struct {
	Load1      float64 `json:"load_1m"`
	Load5      float64 `json:"load_5m"`
	Load15     float64 `json:"load_15m"`
	Runnable   int     `json:"runnable"`
	NProcs     int     `json:"nprocs"`
	Assessment string  `json:"assessment"`
}

// Disk holds aggregate disk throughput.
type Disk struct {
	ReadBytesPerSec  float64 `json:"read_bytes_per_sec"`
	WriteBytesPerSec float64 `json:"write_bytes_per_sec"`
	ReadsPerSec      float64 `json:"reads_per_sec"`
	WritesPerSec     float64 `json:"writes_per_sec"`
	Assessment       string  `json:"assessment"`
}

// Network holds throughput summed over every interface.
type Network struct {
	InBytesPerSec    float64 `json:"in_bytes_per_sec"`
	OutBytesPerSec   float64 `json:"out_bytes_per_sec"`
	InPacketsPerSec  float64 `json:"in_packets_per_sec"`
	OutPacketsPerSec float64 `json:"out_packets_per_sec"`
	Assessment       string  `json:"assessment"`
}

// Throughput thresholds in bytes per second.
const (
	heavyThroughput    = 100_000_000
	moderateThroughput = 10_000_000
)

// BuildCPU computes CPU percentages from the cpu time rates in r.
func BuildCPU(r *metrics.RateReport) *CPU {
	user := r.First("kernel.all.cpu.user")
	sys := r.First("kernel.all.cpu.sys")
	idle := r.First("kernel.all.cpu.idle")
	iowait := r.First("kernel.all.cpu.wait.total")

	c := &CPU{NCPU: ncpu(r)}
	if total := user + sys + idle + iowait; total > 0 {
		c.UserPercent = round(user/total*100, 1)
		c.SystemPercent = round(sys/total*100, 1)
		c.IdlePercent = round(idle/total*100, 1)
		c.IOWaitPercent = round(iowait/total*100, 1)
	}

	switch {
	case c.IOWaitPercent > 20:
		c.Assessment = "High I/O wait - system is disk bound"
	case c.IdlePercent < 10:
		c.Assessment = "CPU is saturated"
	case c.UserPercent > 70:
		c.Assessment = "CPU bound on user processes"
	case c.SystemPercent > 30:
		c.Assessment = "High system/kernel CPU usage"
	default:
		c.Assessment = "CPU utilization is normal"
	}
	return c
}

// BuildMemory computes memory usage. Used memory is total minus available.
func BuildMemory(r *metrics.RateReport) *Memory {
	m := &Memory{
		TotalBytes:     uint64(firstBytes(r, "mem.physmem")),
		AvailableBytes: uint64(firstBytes(r, "mem.util.available")),
		FreeBytes:      uint64(firstBytes(r, "mem.util.free")),
		CachedBytes:    uint64(firstBytes(r, "mem.util.cached")),
		BuffersBytes:   uint64(firstBytes(r, "mem.util.bufmem")),
		SwapTotalBytes: uint64(firstBytes(r, "mem.util.swapTotal")),
	}
	if swapFree := uint64(firstBytes(r, "mem.util.swapFree")); swapFree < m.SwapTotalBytes {
		m.SwapUsedBytes = m.SwapTotalBytes - swapFree
	}
	if m.AvailableBytes < m.TotalBytes {
		m.UsedBytes = m.TotalBytes - m.AvailableBytes
	}
	if m.TotalBytes > 0 {
		m.UsedPercent = round(float64(m.UsedBytes)/float64(m.TotalBytes)*100, 1)
	}

	switch {
	case float64(m.SwapUsedBytes) > float64(m.SwapTotalBytes)*0.5:
		m.Assessment = "Heavy swap usage - memory pressure"
	case m.UsedPercent > 90:
		m.Assessment = "Memory usage is critical"
	case m.UsedPercent > 75:
		m.Assessment = "Memory usage is elevated"
	default:
		m.Assessment = "Memory utilization is normal"
	}
	return m
}

// BuildLoad reads the load averages and compares the 1 minute value with
// the CPU count.
func BuildLoad(r *metrics.RateReport) *Load {
	l := &Load{
		Load1:    round(loadAverage(r, "1"), 2),
		Load5:    round(loadAverage(r, "5"), 2),
		Load15:   round(loadAverage(r, "15"), 2),
		Runnable: int(r.First("kernel.all.runnable")),
		NProcs:   int(r.First("kernel.all.nprocs")),
	}
	n := ncpu(r)
	switch {
	case l.Load1 > float64(n*2):
		l.Assessment = fmt.Sprintf("Load is very high (%.1f vs %d CPUs)", l.Load1, n)
	case l.Load1 > float64(n):
		l.Assessment = fmt.Sprintf("Load is elevated (%.1f > %d CPUs)", l.Load1, n)
	default:
		l.Assessment = "Load is normal"
	}
	return l
}

// BuildDisk reports aggregate disk throughput.
func BuildDisk(r *metrics.RateReport) *Disk {
	d := &Disk{
		ReadBytesPerSec:  round(firstBytes(r, "disk.all.read_bytes"), 1),
		WriteBytesPerSec: round(firstBytes(r, "disk.all.write_bytes"), 1),
		ReadsPerSec:      round(r.First("disk.all.read"), 1),
		WritesPerSec:     round(r.First("disk.all.write"), 1),
	}
	switch {
	case d.ReadBytesPerSec > heavyThroughput || d.WriteBytesPerSec > heavyThroughput:
		d.Assessment = fmt.Sprintf("Heavy disk I/O (%.0f MB/s read, %.0f MB/s write)",
			d.ReadBytesPerSec/1e6, d.WriteBytesPerSec/1e6)
	case d.ReadBytesPerSec > moderateThroughput || d.WriteBytesPerSec > moderateThroughput:
		d.Assessment = "Moderate disk activity"
	default:
		d.Assessment = "Disk I/O is low"
	}
	return d
}

// BuildNetwork sums interface throughput over every interface.
func BuildNetwork(r *metrics.RateReport) *Network {
	n := &Network{
		InBytesPerSec:    round(sumBytes(r, "network.interface.in.bytes"), 1),
		OutBytesPerSec:   round(sumBytes(r, "network.interface.out.bytes"), 1),
		InPacketsPerSec:  round(r.Sum("network.interface.in.packets"), 1),
		OutPacketsPerSec: round(r.Sum("network.interface.out.packets"), 1),
	}
	total := n.InBytesPerSec + n.OutBytesPerSec
	switch {
	case total > heavyThroughput:
		n.Assessment = fmt.Sprintf("High network throughput (%.0f MB/s)", total/1e6)
	case total > moderateThroughput:
		n.Assessment = "Moderate network activity"
	default:
		n.Assessment = "Network I/O is low"
	}
	return n
}

// ncpu returns hinv.ncpu, or 1 when it is absent.
func ncpu(r *metrics.RateReport) int {
	if n := int(r.First("hinv.ncpu")); n > 0 {
		return n
	}
	return 1
}

func loadAverage(r *metrics.RateReport, minutes string) float64 {
	if res, ok := r.Lookup("kernel.all.load", minutes); ok {
		return res.Value
	}
	// Some agents name the instances "1 minute", "5 minute" and so on.
	if res, ok := r.Lookup("kernel.all.load", minutes+" minute"); ok {
		return res.Value
	}
	return 0
}

// unitScale returns the multiplier that converts a space unit to bytes.
func unitScale(unit string) float64 {
	switch unit {
	case "Kbyte":
		return 1 << 10
	case "Mbyte":
		return 1 << 20
	case "Gbyte":
		return 1 << 30
	default:
		return 1
	}
}

func firstBytes(r *metrics.RateReport, metric string) float64 {
	for _, res := range r.Results {
		if res.Metric == metric {
			return res.Value * unitScale(res.Unit)
		}
	}
	return 0
}

func sumBytes(r *metrics.RateReport, metric string) float64 {
	var total float64
	for _, res := range r.Instances(metric) {
		total += res.Value * unitScale(res.Unit)
	}
	return total
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
