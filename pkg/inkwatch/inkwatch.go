// Package inkwatch exposes the SVG to PDF/LaTeX export pipeline as a
// library, for programs that want to regenerate or watch figures without
// the CLI.
//
// Basic usage:
//
//	res, err := inkwatch.Regenerate(ctx, "figures")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Converted, "figures exported")
//
// With options:
//
//	err := inkwatch.Watch(ctx, "figures",
//	    inkwatch.WithRenderer("/opt/inkscape/bin/inkscape"),
//	    inkwatch.WithPrefix("."),
//	    inkwatch.WithDebounce(250*time.Millisecond),
//	)
package inkwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/inkwatch/internal/asset"
	"github.com/hupe1980/inkwatch/internal/batch"
	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/render"
	"github.com/hupe1980/inkwatch/internal/status"
	"github.com/hupe1980/inkwatch/internal/watch"
)

// Errors callers may want to match with errors.Is.
var (
	ErrRendererNotFound = config.ErrRendererNotFound
	ErrPathNotExist     = config.ErrPathNotExist
	ErrNotDirectory     = config.ErrNotDirectory
	ErrAlreadyWatched   = watch.ErrAlreadyWatched
)

// Option configures the pipeline. Use the With* functions to create Options.
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	ready  func()
}

// WithRenderer sets the Inkscape executable. By default it is looked up in PATH.
func WithRenderer(path string) Option { return func(o *options) { o.cfg.Renderer = path } }

// WithRendererArgs appends arguments to every render, quoted like a shell command line.
func WithRendererArgs(args string) Option { return func(o *options) { o.cfg.RendererArgs = args } }

// WithPrefix prepends prefix to both derived file names.
func WithPrefix(prefix string) Option { return func(o *options) { o.cfg.AuxPrefix = prefix } }

// WithRecursive sets whether subdirectories are included. Default true.
func WithRecursive(recursive bool) Option { return func(o *options) { o.cfg.Recursive = recursive } }

// WithWorkers bounds parallel conversions during regeneration.
func WithWorkers(n int) Option { return func(o *options) { o.cfg.Workers = n } }

// WithDebounce sets the per-figure quiet period while watching.
func WithDebounce(d time.Duration) Option { return func(o *options) { o.cfg.Debounce = d } }

// WithoutRegenerate skips the initial export pass of Watch.
func WithoutRegenerate() Option { return func(o *options) { o.cfg.Regenerate = false } }

// WithoutLock lets several watchers share one directory.
func WithoutLock() Option { return func(o *options) { o.cfg.Lock = false } }

// WithMaxWatchErrors sets the consecutive subscription error budget; zero is unlimited.
func WithMaxWatchErrors(n int) Option { return func(o *options) { o.cfg.MaxWatchErrors = n } }

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// WithOutput receives one human-readable line per handled change.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithReady is called once Watch is subscribed and the initial pass is done.
func WithReady(fn func()) Option { return func(o *options) { o.ready = fn } }

func newOptions(opts []Option) (*options, error) {
	o := &options{cfg: config.Default(), logger: logging.Discard(), out: io.Discard}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *options) pipeline(ctx context.Context, dir string) (*config.WatchConfig, *asset.Syncer, error) {
	wc, err := config.NewWatchConfig(o.cfg, dir)
	if err != nil {
		return nil, nil, err
	}

	r := render.New(wc.Renderer(), render.WithExtraArgs(wc.RendererArgs()...), render.WithLogger(o.logger))
	r.CheckVersion(ctx)

	return wc, asset.NewSyncer(r, wc.Prefix(), o.logger), nil
}

// Failure is one figure that could not be exported.
type Failure struct {
	Source string
	Err    error
}

// Result summarises a Regenerate call.
type Result struct {
	// RunID identifies the run in logs.
	RunID string

	// Discovered is the number of figures found.
	Discovered int

	// Converted is the number of figures exported successfully.
	Converted int

	// Failures lists the figures that could not be exported.
	Failures []Failure

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Regenerate exports every figure below dir once. Individual failures are
// reported in the result and, joined, as the returned error; they never
// stop the other figures.
func Regenerate(ctx context.Context, dir string, opts ...Option) (*Result, error) {
	if dir == "" {
		return nil, errors.New("directory must not be empty")
	}

	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	wc, syncer, err := o.pipeline(ctx, dir)
	if err != nil {
		return nil, err
	}

	report := batch.Run(ctx, batch.Options{
		Root:      wc.Root(),
		Recursive: wc.Recursive(),
		Workers:   wc.Workers(),
		Logger:    o.logger,
	}, syncer)

	res := &Result{
		RunID:      report.ID,
		Discovered: report.Discovered,
		Converted:  report.Converted,
		Duration:   report.Duration,
	}

	for _, f := range report.Failures {
		res.Failures = append(res.Failures, Failure{Source: f.Path, Err: f.Err})
	}

	return res, report.Err()
}

// Watch keeps the exports below dir in sync until ctx is cancelled.
func Watch(ctx context.Context, dir string, opts ...Option) error {
	if dir == "" {
		return errors.New("directory must not be empty")
	}

	o, err := newOptions(opts)
	if err != nil {
		return err
	}

	wc, syncer, err := o.pipeline(ctx, dir)
	if err != nil {
		return err
	}

	return watch.Run(ctx, watch.Options{
		Config: wc,
		Syncer: syncer,
		Logger: o.logger,
		Out:    o.out,
		Ready:  o.ready,
	})
}

// State is the freshness of one figure's exports.
type State = status.State

// Figure states reported by Status.
const (
	StateOK      = status.StateOK
	StateMissing = status.StateMissing
	StateStale   = status.StateStale
)

// StatusReport lists every figure with the state of its exports.
type StatusReport = status.Report

// Status reports which figures below dir have missing or stale exports
// without running the renderer.
func Status(dir string, opts ...Option) (*StatusReport, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	root, err := config.ResolveRoot(dir)
	if err != nil {
		return nil, err
	}

	return status.Scan(root, o.cfg.Recursive, o.cfg.AuxPrefix), nil
}
