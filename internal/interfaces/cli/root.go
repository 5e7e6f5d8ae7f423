// Package cli implements the qmdock command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/qmdock/internal/config"
	"github.com/copyleftdev/qmdock/internal/errors"
	"github.com/copyleftdev/qmdock/internal/logging"
	"github.com/copyleftdev/qmdock/internal/scoring"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	LogLevel     string
	OutputFormat string
	Verbose      bool
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       *logging.Logger
	EngineLogger *zap.Logger
	Evaluator    *scoring.Evaluator
	OutputFormat string
}

// NewRootCommand creates the root command with its global flags and
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qmdock",
		Short: "Score and refine candidate molecules against binding sites",
		Long: "qmdock scores candidate structures against target binding sites,\n" +
			"refines them by local search, and compares panel runs with known drugs.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log search progress at debug level")

	cmd.AddCommand(
		NewEvaluateCmd(),
		NewOptimizeCmd(),
		NewAnalyzeCmd(),
	)
	return cmd
}

// persistentPreRun loads configuration and builds the shared evaluator.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json":
	default:
		return errors.Wrapf(errors.ErrInvalidConfig, "unsupported output format %q", opts.OutputFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(logging.ParseLevel(level), cmd.ErrOrStderr()).WithFormat(logging.TextFormat)

	engineLogger := logging.NewZapLogger(logger)
	enc, err := scoring.NewEncoder(cfg.Engine.FeatureWidth)
	if err != nil {
		return err
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		EngineLogger: engineLogger,
		Evaluator:    scoring.NewEvaluator(enc, scoring.WithLogger(engineLogger)),
		OutputFormat: strings.ToLower(opts.OutputFormat),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New("command context is nil").WithComponent("cli")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New("CLIContext not found in command context").WithComponent("cli")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult writes data as indented JSON or, for text output, through its
// String method.
func PrintResult(cmd *cobra.Command, data fmt.Stringer) error {
	format := "text"
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), data.String())
	return err
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.StatusCode(err) < 500 {
		return 2
	}
	return 1
}

// Main runs the CLI and exits the process with a status reflecting err.
func Main() {
	os.Exit(exitCode(Execute()))
}
