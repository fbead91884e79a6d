package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/plexsphere/pcpmon/internal/metrics"
)

func processReport() *metrics.RateReport {
	return report(
		res("proc.psinfo.pid", "101", 101, "none"),
		res("proc.psinfo.pid", "202", 202, "none"),
		res("proc.psinfo.pid", "303", 303, "none"),
		res("proc.psinfo.pid", "0", 0, "none"),
		text("proc.psinfo.cmd", "101", "postgres"),
		text("proc.psinfo.cmd", "202", "nginx"),
		text("proc.psinfo.psargs", "101", "postgres -D /var/lib/pgsql/"+strings.Repeat("x", 300)),
		res("proc.memory.rss", "101", 1024*1024, "Kbyte"),
		res("proc.memory.rss", "202", 2*1024*1024, "Kbyte"),
		res("proc.memory.rss", "303", 1024, "Kbyte"),
		res("proc.psinfo.utime", "101", 900, "millisec"),
		res("proc.psinfo.stime", "101", 300, "millisec"),
		res("proc.psinfo.utime", "202", 100, "millisec"),
		res("proc.psinfo.stime", "202", 50, "millisec"),
		res("hinv.ncpu", "", 2, "count"),
		res("mem.physmem", "", 8*1024*1024, "Kbyte"),
	)
}

func TestBuildProcessTop_SortByCPU(t *testing.T) {
	top := BuildProcessTop(processReport(), SortCPU, 2)

	if len(top.Processes) != 2 {
		t.Fatalf("processes = %d, want 2", len(top.Processes))
	}
	first := top.Processes[0]
	if first.PID != 101 || first.Command != "postgres" {
		t.Errorf("first = %+v, want postgres", first)
	}
	if first.CPUPercent == nil || *first.CPUPercent != 120 {
		t.Errorf("CPUPercent = %v, want 120", first.CPUPercent)
	}
	if len(first.Cmdline) != maxCmdlineLen {
		t.Errorf("Cmdline length = %d, want %d", len(first.Cmdline), maxCmdlineLen)
	}
	if first.RSSBytes != 1<<30 || first.RSSPercent != 12.5 {
		t.Errorf("rss = %d (%v%%)", first.RSSBytes, first.RSSPercent)
	}
	if top.Processes[1].PID != 202 {
		t.Errorf("second pid = %d, want 202", top.Processes[1].PID)
	}
	if top.NCPU != 2 || top.TotalMemoryBytes != 8<<30 {
		t.Errorf("ncpu %d total %d", top.NCPU, top.TotalMemoryBytes)
	}
	if top.Assessment != "postgres is CPU-bound (120%)" {
		t.Errorf("Assessment = %q", top.Assessment)
	}
}

func TestBuildProcessTop_SortByMemory(t *testing.T) {
	top := BuildProcessTop(processReport(), SortMemory, 10)

	if len(top.Processes) != 3 {
		t.Fatalf("processes = %d, want 3 (pid 0 skipped)", len(top.Processes))
	}
	if top.Processes[0].PID != 202 {
		t.Errorf("first pid = %d, want 202", top.Processes[0].PID)
	}
	if top.Processes[2].Command != "unknown" {
		t.Errorf("command without cmd = %q, want unknown", top.Processes[2].Command)
	}
	if top.Assessment != "Top memory: nginx (25.0%)" {
		t.Errorf("Assessment = %q", top.Assessment)
	}
}

func TestBuildProcessTop_SortByIO(t *testing.T) {
	r := report(
		res("proc.psinfo.pid", "1", 1, "none"),
		res("proc.psinfo.pid", "2", 2, "none"),
		text("proc.psinfo.cmd", "1", "rsync"),
		text("proc.psinfo.cmd", "2", "sshd"),
		res("proc.io.read_bytes", "1", 3_000_000, "byte"),
		res("proc.io.write_bytes", "1", 1_500_000, "byte"),
		res("proc.io.read_bytes", "2", 10, "byte"),
	)
	top := BuildProcessTop(r, SortIO, 5)
	if top.Processes[0].Command != "rsync" {
		t.Fatalf("first = %+v", top.Processes[0])
	}
	if top.Processes[0].CPUPercent != nil {
		t.Errorf("CPUPercent should be unset when cpu was not sampled")
	}
	if top.Assessment != "Top I/O: rsync (4.5 MB/s)" {
		t.Errorf("Assessment = %q", top.Assessment)
	}
}

func TestBuildProcessTop_Empty(t *testing.T) {
	top := BuildProcessTop(report(), SortCPU, 5)
	if top.Assessment != "No processes found" {
		t.Errorf("Assessment = %q", top.Assessment)
	}
	if top.NCPU != 1 {
		t.Errorf("NCPU = %d, want 1", top.NCPU)
	}
}

func TestTop_RequestsMetricsForSortKey(t *testing.T) {
	src := &fakeSource{report: processReport()}
	b := NewBuilder(src, discardLogger())

	if _, err := b.Top(context.Background(), "", SortIO, 5, time.Second); err != nil {
		t.Fatalf("Top: %v", err)
	}
	names := strings.Join(src.names[0], ",")
	if !strings.Contains(names, "proc.io.read_bytes") || strings.Contains(names, "proc.psinfo.utime") {
		t.Errorf("names = %s", names)
	}
	if !strings.Contains(names, "mem.physmem") || !strings.Contains(names, "hinv.ncpu") {
		t.Errorf("names = %s, want system metrics", names)
	}
}

func TestTop_InvalidParameters(t *testing.T) {
	src := &fakeSource{report: report()}
	b := NewBuilder(src, discardLogger())
	ctx := context.Background()

	tests := []struct {
		name     string
		sortBy   string
		limit    int
		interval time.Duration
	}{
		{"sort key", "disk", 10, time.Second},
		{"limit zero", SortCPU, 0, time.Second},
		{"limit too high", SortCPU, 51, time.Second},
		{"interval short", SortCPU, 10, 100 * time.Millisecond},
		{"interval long", SortCPU, 10, 6 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Top(ctx, "", tt.sortBy, tt.limit, tt.interval)
			if !errors.Is(err, metrics.ErrInvalidParameter) {
				t.Errorf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}
	if src.calls() != 0 {
		t.Errorf("source calls = %d, want 0", src.calls())
	}
}
