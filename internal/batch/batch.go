// Package batch regenerates the outputs of every source under a root in
// one pass. It runs before live watching starts and can be used on its own.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/naming"
	"github.com/hupe1980/inkwatch/internal/walk"
)

// Converter renders one source.
type Converter interface {
	Convert(ctx context.Context, source string) error
}

// Options configures a batch run.
type Options struct {
	// Root is the directory to scan.
	Root string

	// Recursive descends into subdirectories. Otherwise only Root's own
	// entries are considered.
	Recursive bool

	// Workers bounds concurrent conversions. Defaults to GOMAXPROCS if zero.
	Workers int

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Failure is one source that could not be converted.
type Failure struct {
	Path string
	Err  error
}

// Report summarises a batch run.
type Report struct {
	ID              string
	Discovered      int
	Converted       int
	Failures        []Failure
	TraversalErrors []error
	Duration        time.Duration
}

// Failed returns the number of sources that failed to convert.
func (r *Report) Failed() int { return len(r.Failures) }

// Err joins every failure into one error, or returns nil for a clean run.
func (r *Report) Err() error {
	if len(r.Failures) == 0 && len(r.TraversalErrors) == 0 {
		return nil
	}

	errs := make([]error, 0, len(r.Failures)+len(r.TraversalErrors))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}

	errs = append(errs, r.TraversalErrors...)

	return fmt.Errorf("batch %s: %d of %d source(s) failed, %d traversal error(s): %w",
		r.ID, len(r.Failures), r.Discovered, len(r.TraversalErrors), errors.Join(errs...))
}

// Run converts every source found under opts.Root. Individual failures are
// collected in the report; they never stop the batch. The order in which
// sources are converted is unspecified.
func Run(ctx context.Context, opts Options, conv Converter) *Report {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	report := &Report{ID: uuid.NewString()}
	logger := logging.Component(opts.Logger, "batch").With(slog.String("batch", report.ID))
	start := time.Now()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(workers)

	for e, err := range walk.Tree(opts.Root, opts.Recursive) {
		if err != nil {
			logger.Warn("traversal error", slog.String("path", e.Path), logging.Err(err))
			report.TraversalErrors = append(report.TraversalErrors, err)

			continue
		}

		if e.Dir.IsDir() || !naming.IsSource(e.Path) {
			continue
		}

		if ctx.Err() != nil {
			break
		}

		report.Discovered++
		path := e.Path

		g.Go(func() error {
			err := conv.Convert(ctx, path)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logger.Error("conversion failed", slog.String("source", path), logging.Err(err))
				report.Failures = append(report.Failures, Failure{Path: path, Err: err})

				return nil
			}

			report.Converted++

			return nil
		})
	}

	// Workers never return errors; failures live in the report.
	_ = g.Wait()

	report.Duration = time.Since(start)

	logger.Info("batch finished",
		slog.Int("discovered", report.Discovered),
		slog.Int("converted", report.Converted),
		slog.Int("failed", report.Failed()),
		slog.Int("traversalErrors", len(report.TraversalErrors)),
		slog.Duration("duration", report.Duration),
	)

	return report
}
