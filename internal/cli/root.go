// Package cli implements the cobra command tree for inkwatch.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/logging"
)

// Process exit codes.
const (
	// ExitFailure reports a runtime failure, e.g. a figure that failed to
	// export or a watch subscription that broke down.
	ExitFailure = 1

	// ExitUsage reports a problem with flags, config, or arguments that was
	// detected before any work started.
	ExitUsage = 2
)

// ExitError carries the process exit code for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// usageError marks err as a usage problem.
func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// Execute runs the command tree on os.Args and returns the exit code. Errors
// are printed to stderr once, here, since cobra's own printing is silenced.
func Execute() int {
	return execute(NewRootCommand(), os.Args[1:], os.Stderr)
}

func execute(cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitFailure
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "inkwatch",
		Short: "Keep PDF/LaTeX exports of SVG figures in sync with Inkscape",
		Long: `inkwatch watches a directory of SVG figures and re-exports each one with
Inkscape as a PDF page plus a LaTeX overlay (.pdf_tex) whenever it changes.

Deleting or renaming a figure removes or moves its exports. On startup every
figure is exported once so existing outputs are never stale.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return usageError(err)
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .inkwatch.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	registerRendererFlags(cmd)
	registerTraversalFlags(cmd)

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	// Register subcommands.
	cmd.AddCommand(
		newWatchCommand(),
		newRegenCommand(),
		newStatusCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}
