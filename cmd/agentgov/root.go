package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/agentgov/pkg/cli"
	"mercator-hq/agentgov/pkg/config"
	"mercator-hq/agentgov/pkg/governance"
	"mercator-hq/agentgov/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentgov",
	Short: "Agentgov - governance runtime for AI-agent actions",
	Long: `Agentgov evaluates actions proposed by AI agents before they run.

Each action is checked against priority-ordered rules and scoped rate limits,
scored for risk, and recorded in a durable audit trail. Actions that need a
human decision enter an approval workflow.`,
	Version:       Version,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the config file named by --config with AGENTGOV_*
// overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	lc.Writer = w
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return logger, nil
}

// startService builds and initializes a service for a one-shot command. The
// caller must Close it.
func startService(ctx context.Context, cmd *cobra.Command, opts ...governance.Option) (*governance.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	svc, err := governance.New(cfg, append([]governance.Option{governance.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	if err := svc.Initialize(ctx); err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}
	return svc, nil
}

// formatter resolves the --format flag of a command.
func formatter(format string) (cli.Formatter, error) {
	return cli.NewFormatter(cli.OutputFormat(format))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
