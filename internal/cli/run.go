package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/config"
	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/observability"
	"github.com/roach88/tracemon/internal/remote"
	"github.com/roach88/tracemon/internal/server"
	"github.com/roach88/tracemon/internal/sink"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/violation"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
	Specs    string
	Listen   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring service",
		Long: `Start the monitoring service.

The service compiles the CUE monitors, opens the SQLite database
(creating it if needed), restores the stored traces and knowledge
vector, then serves the HTTP API until interrupted. Flags override the
values of the YAML configuration file.

Example:
  tracemon run --config tracemon.yaml
  tracemon run --db ./tracemon.db --specs ./monitors --listen :8700 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "tracemon.yaml", "path to YAML configuration (optional)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "CUE monitor file or directory")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address")

	return cmd
}

// loadRunConfig loads the configuration file and applies flag overrides.
func loadRunConfig(opts *RunOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("specs") {
		cfg.Specs = opts.Specs
	}
	if flags.Changed("listen") {
		cfg.Listen = opts.Listen
	}
	return cfg, cfg.Validate()
}

// compileSpecs loads, compiles and validates the monitors at path.
func compileSpecs(path string) ([]ir.MonitorSpec, error) {
	loadResult, loadErrors := LoadSpecs(path, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	if verrs := compiler.ValidateAll(loadResult.Monitors); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, errors.Join(errs...)
	}
	return loadResult.Monitors, nil
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadRunConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger, err := opts.newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("compiling monitors", zap.String("specs", cfg.Specs))
	specs, err := compileSpecs(cfg.Specs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile monitors", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var sinks []violation.Sink
	if dsn := cfg.Sink.Postgres.DSN; dsn != "" {
		pg, err := sink.OpenPostgres(ctx, dsn, cfg.Sink.Postgres.Table)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open postgres sink", err)
		}
		defer pg.Close()
		if err := pg.EnsureTable(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to prepare postgres sink", err)
		}
		sinks = append(sinks, pg)
		logger.Info("postgres sink enabled", zap.String("table", cfg.Sink.Postgres.Table))
	}

	eng, err := engine.New(st, specs,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithSinks(sinks...),
		engine.WithQueueSize(cfg.QueueSize),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	restored, err := eng.Restore(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore traces", err)
	}

	srvOpts := []server.Option{server.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		srvOpts = append(srvOpts, server.WithMetrics(metrics, registry, cfg.Metrics.Path))
	}
	srv := server.New(eng, srvOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Listen) })

	interval, _ := cfg.GetKVSyncInterval()
	if len(cfg.Actors) > 0 && interval > 0 {
		peers := make([]*remote.Client, len(cfg.Actors))
		for i, a := range cfg.Actors {
			peers[i] = remote.NewClient(a.Name, a.URL)
		}
		syncer := remote.NewSyncer(eng, cfg.Hostname, peers, interval, logger)
		g.Go(func() error { return syncer.Run(gctx) })
	}

	logger.Info("service started",
		zap.String("listen", cfg.Listen),
		zap.String("db", cfg.Database),
		zap.Int("monitors", len(specs)),
		zap.Int("restored_events", restored))
	fmt.Fprintf(cmd.OutOrStdout(), "Monitoring %d monitor(s) on %s. Press Ctrl-C to stop.\n", len(specs), cfg.Listen)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "service error", err)
	}
	logger.Info("service stopped")
	return nil
}
