package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/inkwatch/internal/batch"
	"github.com/hupe1980/inkwatch/internal/logging"
)

func newRegenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regen <dir>",
		Short: "Re-export every figure once and exit",
		Long: `Regen converts every SVG figure below <dir> with a bounded worker pool
(see --workers) and exits. A failing figure does not stop the others; the
command exits with status 1 when any figure failed.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(cmd.Context(), cmd, args[0])
		},
	}

	return cmd
}

func runRegen(ctx context.Context, cmd *cobra.Command, dir string) error {
	p, err := newPipeline(ctx, dir)
	if err != nil {
		return err
	}

	report := batch.Run(ctx, batch.Options{
		Root:      p.cfg.Root(),
		Recursive: p.cfg.Recursive(),
		Workers:   p.cfg.Workers(),
		Logger:    logging.FromContext(ctx),
	}, p.syncer)

	w := cmd.OutOrStdout()

	for _, f := range report.Failures {
		fmt.Fprintf(w, "FAILED %s: %v\n", f.Path, f.Err)
	}

	fmt.Fprintf(w, "converted %s of %s source(s) in %s\n",
		humanize.Comma(int64(report.Converted)),
		humanize.Comma(int64(report.Discovered)),
		report.Duration.Round(time.Millisecond),
	)

	if err := report.Err(); err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	return nil
}
