package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/watch"
)

var (
	watchInterval time.Duration
	watchHosts    string
	watchLatest   string
	watchDuration time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Record snapshots periodically as JSON lines",
	Long: "watch takes a snapshot of every configured host on each collection\n" +
		"cycle and writes the buffered records to stdout as JSON lines. With\n" +
		"--latest the newest record per host and kind is also kept in a file.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		cfg := rt.cfg.Watch
		if watchInterval > 0 {
			cfg.CollectInterval = watchInterval
			if cfg.ReportInterval < cfg.CollectInterval {
				cfg.ReportInterval = cfg.CollectInterval
			}
		}
		if hosts := splitList(watchHosts); len(hosts) > 0 {
			cfg.Hosts = hosts
		}
		if err := cfg.Validate(); err != nil {
			return commandError(cmd, err)
		}

		reporter := watch.MultiReporter{watch.NewJSONLinesReporter(cmd.OutOrStdout())}
		if watchLatest != "" {
			reporter = append(reporter, watch.NewLatestFileReporter(watchLatest))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		if watchDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, watchDuration)
			defer cancel()
		}

		mgr := watch.NewManager(cfg, watch.NewCollectors(cfg, rt.snapshots), reporter, rt.logger)
		err = mgr.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return commandError(cmd, err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "collection interval, overrides config (default 30s)")
	watchCmd.Flags().StringVar(&watchHosts, "hosts", "", "comma-separated hosts to watch (default: configured hosts)")
	watchCmd.Flags().StringVar(&watchLatest, "latest", "", "also keep the newest record per host and kind in this file")
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "stop after this long (default: run until interrupted)")
	rootCmd.AddCommand(watchCmd)
}
