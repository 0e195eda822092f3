package cli

import (
	"context"

	"github.com/hupe1980/inkwatch/internal/asset"
	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/render"
)

// pipeline is what watch and regen share: the frozen configuration and the
// syncer built on top of it.
type pipeline struct {
	cfg      *config.WatchConfig
	renderer *render.Renderer
	syncer   *asset.Syncer
}

// newPipeline resolves dir and the renderer. Resolution failures are usage
// errors and exit with code 2.
func newPipeline(ctx context.Context, dir string) (*pipeline, error) {
	logger := logging.FromContext(ctx)

	wc, err := config.NewWatchConfig(config.FromContext(ctx), dir)
	if err != nil {
		return nil, usageError(err)
	}

	r := render.New(wc.Renderer(),
		render.WithExtraArgs(wc.RendererArgs()...),
		render.WithLogger(logger),
	)

	// Old releases lack --export-filename; warn before the first render fails.
	r.CheckVersion(ctx)

	return &pipeline{
		cfg:      wc,
		renderer: r,
		syncer:   asset.NewSyncer(r, wc.Prefix(), logger),
	}, nil
}
