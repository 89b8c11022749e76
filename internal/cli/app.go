package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sufield/securechain/internal/adapters/logging"
	"github.com/sufield/securechain/internal/adapters/secondary/config"
	"github.com/sufield/securechain/internal/core/ports"
)

// app holds what every command in one tree shares: global flags, the loaded
// configuration and the logger built from it.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	output     string
	noColor    bool

	provider *config.Provider
	cfg      *ports.Configuration
	logger   *slog.Logger
}

func newApp() *app {
	return &app{provider: config.NewProvider()}
}

func (a *app) bindGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&a.configPath, "config", "c", "", "Configuration file (YAML); SECURECHAIN_* environment variables override it")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVarP(&a.output, "output", "o", formatText, "Output format: text, json or yaml")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
}

// load reads configuration and builds the logger. It runs before every command
// that needs either.
func (a *app) load(cmd *cobra.Command) error {
	if err := a.prepareOutput(); err != nil {
		return err
	}

	cfg, err := a.provider.LoadConfiguration(cmd.Context(), a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	logger, err := logging.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// prepareOutput applies --no-color and checks --output.
func (a *app) prepareOutput() error {
	if a.noColor {
		color.NoColor = true
	}
	if !validFormat(a.output) {
		return fmt.Errorf("%w: unsupported output format %q, use text, json or yaml", ErrUsage, a.output)
	}
	return nil
}

func (a *app) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(cmd.OutOrStdout(), a.output)
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// usageArgs tags cobra argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return nil
	}
}

func flagUsageError(_ *cobra.Command, err error) error {
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

// skipLoad replaces the root pre-run for commands that need no configuration.
func skipLoad(*cobra.Command, []string) error { return nil }

// Execute runs root with os.Args and returns the process exit code. Errors are
// printed to stderr.
func Execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return ExitCode(err)
}
