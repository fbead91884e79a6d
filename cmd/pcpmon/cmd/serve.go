package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/queryapi"
)

var (
	serveListen    string
	serveTokenFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics, rates and snapshots over HTTP",
	Long: "serve exposes query, rates, search, describe, snapshot, netstat and top\n" +
		"as a JSON HTTP API. Requests are authenticated with a bearer token when\n" +
		"a token file is configured.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return commandError(cmd, err)
		}
		defer rt.Close()

		cfg := rt.cfg.Server
		if serveListen != "" {
			cfg.Listen = serveListen
		}
		if serveTokenFile != "" {
			cfg.TokenFile = serveTokenFile
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		rt.logger.Info("starting pcpmon server",
			"version", buildVersion,
			"commit", buildCommit,
			"target_host", rt.cfg.Metrics.TargetHost,
		)
		srv := queryapi.NewServer(cfg, rt.engine, rt.snapshots, rt.logger)
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return commandError(cmd, err)
		}
		rt.logger.Info("pcpmon stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address, overrides config (default 127.0.0.1:9464)")
	serveCmd.Flags().StringVar(&serveTokenFile, "token-file", "", "file holding the bearer token clients must send")
	rootCmd.AddCommand(serveCmd)
}
