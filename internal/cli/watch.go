package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/watch"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and re-export figures as they change",
		Long: `Watch converts every SVG figure below <dir> once and then keeps the
exports in sync until interrupted:

  created or edited   fig.svg  -> fig.pdf + fig.pdf_tex are re-exported
  deleted             fig.svg  -> both exports are removed
  renamed             fig.svg  -> exports follow the new name

Edits to the same figure are debounced and never rendered concurrently.
Use --regenerate=false to skip the initial pass and --recursive=false to
ignore subdirectories.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0])
		},
	}

	registerWatchFlags(cmd)

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string) error {
	p, err := newPipeline(ctx, dir)
	if err != nil {
		return err
	}

	return watch.Run(ctx, watch.Options{
		Config: p.cfg,
		Syncer: p.syncer,
		Logger: logging.FromContext(ctx),
		Out:    cmd.ErrOrStderr(),
	})
}
