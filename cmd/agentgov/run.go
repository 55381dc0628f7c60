package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/governance"
	"mercator-hq/agentgov/pkg/server"
	"mercator-hq/agentgov/pkg/telemetry/health"
	"mercator-hq/agentgov/pkg/telemetry/metrics"
	"mercator-hq/agentgov/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress   string
	logLevel        string
	dryRun          bool
	shutdownTimeout time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governance service",
	Long: `Start the governance service with the specified configuration.

The service loads its rules, opens the audit store and starts the background
retry, sync and expiry timers. Metrics, health and version endpoints are
served on the metrics listen address.

Examples:
  # Start with a config file
  agentgov run --config /etc/agentgov/config.yaml

  # Override the observability listen address
  agentgov run --listen 0.0.0.0:9090

  # Validate config without starting
  agentgov run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override metrics/health listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
	runCmd.Flags().DurationVar(&runFlags.shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for shutdown")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(commandContext(cmd))
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to create tracer: %w", err))
	}
	defer shutdownTracer(tracer, runFlags.shutdownTimeout)

	opts := []governance.Option{
		governance.WithLogger(logger),
		governance.WithTracer(tracer.Tracer()),
	}
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
		opts = append(opts, governance.WithMetrics(collector))
	}

	svc, err := governance.New(cfg, opts...)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	if err := svc.Initialize(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Governance service initialized (%d rules)\n", len(svc.Rules()))

	checker := health.New(5 * time.Second)
	svc.RegisterHealthChecks(checker)
	srv := newObservabilityServer(cfg, collector, checker, logger)
	if err := srv.Listen(); err != nil {
		svc.Close(context.Background())
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", srv.Addr())
	if collector != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", srv.Addr(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	var runErr error
	if err := srv.Serve(ctx); err != nil {
		runErr = cli.NewCommandError("run", err)
	} else {
		fmt.Fprintln(out, "\nShutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runFlags.shutdownTimeout)
	defer cancel()
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Error("governance service shutdown failed", "error", err)
		if runErr == nil {
			runErr = cli.NewCommandError("run", err)
		}
	}
	if runErr == nil {
		fmt.Fprintln(out, "✓ Service stopped")
	}
	return runErr
}

func newObservabilityServer(cfg *config.Config, collector *metrics.Collector, checker *health.Checker, logger *slog.Logger) *server.Server {
	mux := http.NewServeMux()
	health.Mount(mux, checker, Version, GitCommit, BuildDate)
	if collector != nil {
		mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
	}
	return server.New(&server.Config{
		Address:         cfg.Telemetry.Metrics.ListenAddress,
		ShutdownTimeout: runFlags.shutdownTimeout,
	}, tracing.HTTPMiddleware(mux), server.WithLogger(logger))
}

func shutdownTracer(t *tracing.Tracer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		slog.Warn("tracer shutdown failed", "error", err)
	}
}
