package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/syncinterval/internal/adminapi"
	"codeberg.org/mutker/syncinterval/internal/audit"
	"codeberg.org/mutker/syncinterval/internal/config"
	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/pidfile"
	"codeberg.org/mutker/syncinterval/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the admin API and metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			snapshot, _ := cmd.Flags().GetString("snapshot")
			return serve(cmd.Context(), cfg, snapshot)
		},
	}
	cmd.Flags().String("snapshot", "", "Configuration snapshot to import at startup")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, snapshot string) error {
	errFactory := errors.New()

	if cfg.PIDFile != "" {
		if err := pidfile.Write(cfg.PIDFile); err != nil {
			return err
		}
		defer func() {
			if err := pidfile.Remove(cfg.PIDFile); err != nil {
				logger.Error().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector, err := telemetry.NewCollector(cfg.Telemetry, reg)
	if err != nil {
		return err
	}

	sink, err := audit.NewSink(cfg.Audit, logger.Default().With("audit"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitAudit, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close audit sink")
		}
	}()

	if cfg.Telemetry.Enabled {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: cfg.Telemetry.Namespace,
			Name:      "audit_dropped_total",
			Help:      "Decisions the audit sink discarded",
		}, func() float64 { return float64(sink.Dropped()) }))
	}

	mgr, err := newEngine(cfg, engine.WithObservers(collector, sink))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	if snapshot != "" {
		blob, err := os.ReadFile(snapshot)
		if err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		if err := mgr.ImportConfig(blob); err != nil {
			return err
		}
		logger.Info().Str("path", snapshot).Msg("Snapshot imported")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel)

	if !cfg.Admin.Enabled {
		logger.Info().Msg("Admin API disabled; waiting for termination signal")
		<-ctx.Done()
		return nil
	}

	var reader adminapi.AuditReader
	if cfg.Audit.Enabled {
		reader = sink
	}
	var gatherer prometheus.Gatherer
	if cfg.Telemetry.Enabled {
		gatherer = reg
	}

	srv := adminapi.NewServer(cfg.Admin, adminapi.NewHandler(mgr, reader), gatherer, logger.Default().With("adminapi"))
	return srv.Run(ctx)
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}
