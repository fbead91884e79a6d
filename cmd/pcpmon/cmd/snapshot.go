package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/snapshot"
)

var (
	snapshotCategories string
	snapshotInterval   time.Duration
	netstatInterval    time.Duration
	topSortBy          string
	topLimit           int
	topInterval        time.Duration
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print a health overview of CPU, memory, load, disk and network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		snap, err := rt.snapshots.Take(cmd.Context(), targetHost, splitList(snapshotCategories), snapshotInterval)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, snap, func(w io.Writer) error {
			renderSnapshot(w, snap)
			return nil
		})
	},
}

var netstatCmd = &cobra.Command{
	Use:   "netstat",
	Short: "Print TCP, UDP and interface error rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		stats, err := rt.snapshots.NetworkStats(cmd.Context(), targetHost, netstatInterval)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, stats, func(w io.Writer) error {
			return renderNetworkStats(w, stats)
		})
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the heaviest processes by CPU, memory or I/O",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		top, err := rt.snapshots.Top(cmd.Context(), targetHost, topSortBy, topLimit, topInterval)
		if err != nil {
			return commandError(cmd, err)
		}
		return emit(cmd, top, func(w io.Writer) error {
			return renderTop(w, top)
		})
	},
}

func splitList(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func renderSnapshot(w io.Writer, s *snapshot.Snapshot) {
	fmt.Fprintf(w, "host %s at %s\n", s.Host, s.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
	if c := s.CPU; c != nil {
		fmt.Fprintf(w, "cpu:     user %.1f%%  sys %.1f%%  idle %.1f%%  iowait %.1f%%  (%d cpus)  %s\n",
			c.UserPercent, c.SystemPercent, c.IdlePercent, c.IOWaitPercent, c.NCPU, c.Assessment)
	}
	if m := s.Memory; m != nil {
		fmt.Fprintf(w, "memory:  %s of %s used (%.1f%%)  swap %s of %s  %s\n",
			ibytes(m.UsedBytes), ibytes(m.TotalBytes), m.UsedPercent,
			ibytes(m.SwapUsedBytes), ibytes(m.SwapTotalBytes), m.Assessment)
	}
	if l := s.Load; l != nil {
		fmt.Fprintf(w, "load:    %.2f %.2f %.2f  runnable %d of %d  %s\n",
			l.Load1, l.Load5, l.Load15, l.Runnable, l.NProcs, l.Assessment)
	}
	if d := s.Disk; d != nil {
		fmt.Fprintf(w, "disk:    read %s  write %s  (%s r/s, %s w/s)  %s\n",
			bytesRate(d.ReadBytesPerSec), bytesRate(d.WriteBytesPerSec),
			number(d.ReadsPerSec), number(d.WritesPerSec), d.Assessment)
	}
	if n := s.Network; n != nil {
		fmt.Fprintf(w, "network: in %s  out %s  %s\n",
			bytesRate(n.InBytesPerSec), bytesRate(n.OutBytesPerSec), n.Assessment)
	}
	printMissing(w, s.Missing)
}

func renderNetworkStats(w io.Writer, s *snapshot.NetworkStats) error {
	fmt.Fprintf(w, "host %s: %s\n", s.Host, s.Assessment)
	fmt.Fprintf(w, "tcp: established %d  active opens %s/s  passive opens %s/s  retransmits %s/s  resets %s/s\n",
		s.TCP.CurrentEstablished, number(s.TCP.ActiveOpensPerSec), number(s.TCP.PassiveOpensPerSec),
		number(s.TCP.RetransmitsPerSec), number(s.TCP.EstabResetsPerSec))
	fmt.Fprintf(w, "udp: in %s/s  out %s/s  errors %s/s  no ports %s/s\n",
		number(s.UDP.InDatagramsPerSec), number(s.UDP.OutDatagramsPerSec),
		number(s.UDP.InErrorsPerSec), number(s.UDP.NoPortsPerSec))
	if len(s.Interfaces) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "INTERFACE\tIN ERR/S\tOUT ERR/S\tIN DROP/S")
	for _, e := range s.Interfaces {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Interface,
			number(e.InErrorsPerSec), number(e.OutErrorsPerSec), number(e.InDropsPerSec))
	}
	return tw.Flush()
}

func renderTop(w io.Writer, top *snapshot.ProcessTop) error {
	fmt.Fprintf(w, "host %s: %s\n", top.Host, top.Assessment)
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tCOMMAND\tCPU%\tRSS\tMEM%\tIO")
	for _, p := range top.Processes {
		cpu, ioRate := "-", "-"
		if p.CPUPercent != nil {
			cpu = fmt.Sprintf("%.1f", *p.CPUPercent)
		}
		if p.IOReadBytesPerSec != nil && p.IOWriteBytesPerSec != nil {
			ioRate = bytesRate(*p.IOReadBytesPerSec + *p.IOWriteBytesPerSec)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f\t%s\n", p.PID, p.Command, cpu, ibytes(p.RSSBytes), p.RSSPercent, ioRate)
	}
	return tw.Flush()
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotCategories, "categories", "", "comma-separated categories: cpu, memory, load, disk, network (default all)")
	snapshotCmd.Flags().DurationVar(&snapshotInterval, "interval", snapshot.DefaultSampleInterval, "sampling interval for rates")
	netstatCmd.Flags().DurationVar(&netstatInterval, "interval", snapshot.DefaultSampleInterval, "sampling interval for rates")
	topCmd.Flags().StringVar(&topSortBy, "sort", snapshot.SortCPU, "sort by cpu, memory or io")
	topCmd.Flags().IntVar(&topLimit, "limit", snapshot.DefaultProcessLimit, "number of processes to list")
	topCmd.Flags().DurationVar(&topInterval, "interval", snapshot.DefaultSampleInterval, "sampling interval for cpu and io rates")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(netstatCmd)
	rootCmd.AddCommand(topCmd)
}
