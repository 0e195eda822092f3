package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/inkwatch/internal/batch"
	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/event"
	"github.com/hupe1980/inkwatch/internal/logging"
	"github.com/hupe1980/inkwatch/internal/naming"
	"github.com/hupe1980/inkwatch/internal/walk"
)

// ErrSubscription is returned when the filesystem subscription keeps
// failing beyond the configured error budget.
var ErrSubscription = errors.New("watch subscription failed")

// Syncer applies actions to derived outputs.
type Syncer interface {
	Apply(ctx context.Context, a event.Action) error
	Convert(ctx context.Context, source string) error
}

// Options configures the watch behaviour.
type Options struct {
	// Config is the resolved watch configuration.
	Config *config.WatchConfig

	// Syncer performs the conversions and cleanups.
	Syncer Syncer

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status lines.
	Out io.Writer

	// LockDir holds the instance lock file. Defaults to the OS temp directory.
	LockDir string

	// Ready, when set, is called once the subscription is active and the
	// startup batch (if any) has finished.
	Ready func()
}

// subscription is the part of *fsnotify.Watcher the loop drives.
type subscription interface {
	Add(name string) error
	Remove(name string) error
	WatchList() []string
}

// watcher is the state of one Run.
type watcher struct {
	cfg        *config.WatchConfig
	syncer     Syncer
	classifier event.Classifier
	dispatcher *Dispatcher
	fsw        subscription
	logger     *slog.Logger
	out        io.Writer
}

// Run watches the configured root and keeps derived outputs in sync until
// ctx is cancelled, SIGINT/SIGTERM arrives, or the subscription fails more
// often in a row than the error budget allows.
func Run(ctx context.Context, opts Options) error {
	if opts.Config == nil || opts.Syncer == nil {
		return errors.New("watch requires a config and a syncer")
	}

	logger := logging.Component(opts.Logger, "watch")

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	cfg := opts.Config

	if cfg.Lock() {
		lock, err := AcquireLock(opts.LockDir, cfg.Root())
		if err != nil {
			return err
		}

		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("releasing instance lock", logging.Err(err))
			}
		}()

		logger.Debug("instance lock acquired", slog.String("lock", lock.Path()))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	// Trap SIGINT / SIGTERM for shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &watcher{
		cfg:    cfg,
		syncer: opts.Syncer,
		fsw:    fsw,
		logger: logger,
		out:    opts.Out,
	}

	w.dispatcher = NewDispatcher(sigCtx, cfg.Debounce(), w.handle, logger)
	defer w.dispatcher.Stop()

	if err := fsw.Add(cfg.Root()); err != nil {
		return fmt.Errorf("watching %s: %w", cfg.Root(), err)
	}

	if cfg.Recursive() {
		w.addTree(cfg.Root(), false)
	}

	fmt.Fprintf(opts.Out, "watching %s (recursive=%t, prefix=%q, debounce=%s)\n",
		cfg.Root(), cfg.Recursive(), cfg.Prefix(), cfg.Debounce())

	// The subscription is already active, so edits made while the batch
	// runs are queued rather than lost.
	if cfg.Regenerate() {
		report := batch.Run(sigCtx, batch.Options{
			Root:      cfg.Root(),
			Recursive: cfg.Recursive(),
			Workers:   cfg.Workers(),
			Logger:    opts.Logger,
		}, opts.Syncer)

		fmt.Fprintf(opts.Out, "[%s] (initial) → %d converted, %d failed\n",
			now(), report.Converted, report.Failed())
	}

	if opts.Ready != nil {
		opts.Ready()
	}

	err = w.loop(sigCtx, fsw.Events, fsw.Errors)

	// Renders in flight are allowed to finish; nothing outlives Run.
	w.dispatcher.Stop()

	if n := w.dispatcher.Pending(); n > 0 {
		logger.Info("waiting for running actions", slog.Int("sources", n))
	}

	w.dispatcher.Wait()

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(opts.Out, "\nshutting down watcher")
		return nil
	}

	return err
}

// loop pumps notifications until ctx ends or a channel closes. It returns
// ctx.Err() on cancellation.
func (w *watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	failures := 0
	budget := w.cfg.MaxWatchErrors()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			failures = 0

			if !isRelevant(ev) {
				continue
			}

			w.dispatch(ev)

		case watchErr, ok := <-errs:
			if !ok {
				return nil
			}

			failures++
			w.logger.Error("watcher error",
				logging.Err(watchErr),
				slog.Int("consecutive", failures),
			)

			if budget > 0 && failures >= budget {
				return fmt.Errorf("%w: %d consecutive errors, last: %w", ErrSubscription, failures, watchErr)
			}
		}
	}
}

// dispatch classifies one event and hands the resulting action to the
// dispatcher. Nothing here waits on a render.
func (w *watcher) dispatch(ev fsnotify.Event) {
	if w.cfg.Recursive() && ev.Has(fsnotify.Rename) {
		w.forget(ev.Name)
	}

	if w.cfg.Recursive() && ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addTree(ev.Name, true)
			return
		}
	}

	a := w.classifier.Classify(event.FromFsnotify(ev))
	if a.Op == event.OpIgnore {
		w.logger.Debug("ignored event", slog.String("event", ev.String()))
		return
	}

	w.dispatcher.Submit(a)
}

// handle runs on a dispatcher goroutine.
func (w *watcher) handle(ctx context.Context, a event.Action) {
	if err := w.syncer.Apply(ctx, a); err != nil {
		w.logger.Error("action failed", slog.String("action", a.String()), logging.Err(err))
		fmt.Fprintf(w.out, "[%s] %s → ERROR: %v\n", now(), a, err)

		return
	}

	fmt.Fprintf(w.out, "[%s] %s → OK\n", now(), a)
}

// addTree subscribes to every directory below root. When convert is set
// the sources already inside are converted too: a directory moved into the
// tree arrives as a single Create with no events for its contents.
func (w *watcher) addTree(root string, convert bool) {
	if convert {
		if err := w.fsw.Add(root); err != nil {
			w.logger.Warn("watching directory", slog.String("dir", root), logging.Err(err))
		}
	}

	for e, err := range walk.Tree(root, true) {
		if err != nil {
			w.logger.Warn("traversal error", slog.String("path", e.Path), logging.Err(err))
			continue
		}

		if e.Dir.IsDir() {
			if err := w.fsw.Add(e.Path); err != nil {
				w.logger.Warn("watching directory", slog.String("dir", e.Path), logging.Err(err))
			}

			continue
		}

		if convert && naming.IsSource(e.Path) {
			w.dispatcher.Submit(event.Action{Op: event.OpConvert, Path: e.Path})
		}
	}
}

// forget drops the subscriptions of a directory that moved away and of every
// watched directory below it. inotify keys watches by inode, so a leftover
// registration under the old name would swallow the re-add under the new one.
func (w *watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)

	for _, p := range w.fsw.WatchList() {
		if p != dir && !strings.HasPrefix(p, prefix) {
			continue
		}

		if err := w.fsw.Remove(p); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.logger.Warn("unwatching directory", slog.String("dir", p), logging.Err(err))
		}

		w.logger.Debug("directory moved away", slog.String("dir", p))
	}
}

// isRelevant filters out events that can never change an output.
func isRelevant(ev fsnotify.Event) bool {
	if ev.Op == 0 {
		return false
	}

	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func now() string {
	return time.Now().Format("15:04:05")
}
