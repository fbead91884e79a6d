package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/pcpmon/internal/api"
	"github.com/plexsphere/pcpmon/internal/cache"
	"github.com/plexsphere/pcpmon/internal/config"
	"github.com/plexsphere/pcpmon/internal/metrics"
	"github.com/plexsphere/pcpmon/internal/session"
	"github.com/plexsphere/pcpmon/internal/snapshot"
	"github.com/plexsphere/pcpmon/internal/telemetry"
)

// telemetryShutdownTimeout bounds the final exporter flush.
const telemetryShutdownTimeout = 5 * time.Second

// runtime wires the components every command needs.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Provider
	sessions  *session.Manager
	cache     *cache.Cache
	engine    *metrics.Engine
	snapshots *snapshot.Builder
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	path, required := cfgFile, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}
	if gatewayURL != "" {
		cfg.Gateway.BaseURL = gatewayURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	tel, err := telemetry.New(cmd.Context(), cfg.Telemetry, buildVersion)
	if err != nil {
		return nil, err
	}

	gw, err := api.NewGateway(cfg.Gateway, buildVersion, logger)
	if err != nil {
		return nil, err
	}
	gw.SetObserver(tel)

	sessions := session.NewManager(gw, cfg.Session, logger)
	sessions.SetObserver(tel)

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	c.SetObserver(tel)

	engine, err := metrics.NewEngine(gw, sessions, c, cfg.Metrics, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("runtime ready",
		"version", buildVersion,
		"gateway", gw.BaseURL(),
		"target_host", cfg.Metrics.TargetHost,
	)

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		sessions:  sessions,
		cache:     c,
		engine:    engine,
		snapshots: snapshot.NewBuilder(engine, logger),
	}, nil
}

// Close releases sessions and flushes telemetry.
func (r *runtime) Close() {
	r.sessions.Close()
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// commandError prefixes err with the command path, as in "pcpmon rates: ...".
func commandError(cmd *cobra.Command, err error) error {
	return fmt.Errorf("%s: %w", cmd.CommandPath(), err)
}
