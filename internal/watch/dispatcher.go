package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/inkwatch/internal/event"
)

// HandleFunc performs one action. It runs on a dispatcher goroutine.
type HandleFunc func(ctx context.Context, a event.Action)

// Dispatcher runs actions off the notification path while keeping actions
// for the same source in order. Per key at most one action is in flight;
// actions arriving meanwhile replace each other so only the latest runs
// next. Actions for different keys run in parallel.
//
// With a non-zero delay each key also waits for that long without new
// actions before starting, which folds the burst of writes an editor
// produces on save into one render.
type Dispatcher struct {
	ctx    context.Context
	delay  time.Duration
	handle HandleFunc
	logger *slog.Logger

	mu      sync.Mutex
	lanes   map[string]*lane
	wg      sync.WaitGroup
	stopped bool
}

// lane is the state of one key.
type lane struct {
	pending *event.Action
	timer   *time.Timer
	gen     uint64
	running bool
}

// NewDispatcher creates a dispatcher calling handle with ctx.
func NewDispatcher(ctx context.Context, delay time.Duration, handle HandleFunc, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		ctx:    ctx,
		delay:  delay,
		handle: handle,
		logger: logger,
		lanes:  make(map[string]*lane),
	}
}

// Submit queues a under its key. It never blocks on a running action.
//
// A rename runs on the lane of its new name. When the old name still has
// work queued or running, the rename is split into a remove of the old
// outputs and a fresh convert so neither lane is bypassed.
func (d *Dispatcher) Submit(a event.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if a.Op == event.OpRename {
		if _, busy := d.lanes[a.From]; busy {
			d.logger.Debug("splitting rename of busy source", slog.String("action", a.String()))
			d.submitLocked(event.Action{Op: event.OpRemove, Path: a.From})
			d.submitLocked(event.Action{Op: event.OpConvert, Path: a.Path})

			return
		}
	}

	d.submitLocked(a)
}

func (d *Dispatcher) submitLocked(a event.Action) {
	key := a.Key()

	l, ok := d.lanes[key]
	if !ok {
		l = &lane{}
		d.lanes[key] = l
	}

	if l.pending != nil {
		d.logger.Debug("superseded pending action",
			slog.String("dropped", l.pending.String()),
			slog.String("action", a.String()),
		)
	}

	l.pending = &a

	if d.delay > 0 {
		if l.timer != nil && l.timer.Stop() {
			// The stopped callback will never run; release its slot.
			d.wg.Done()
		}

		l.gen++
		gen := l.gen

		d.wg.Add(1)
		l.timer = time.AfterFunc(d.delay, func() {
			defer d.wg.Done()
			d.fire(key, l, gen)
		})

		return
	}

	d.startLocked(key, l)
}

// fire runs when a key's settle delay expired. A callback from a timer
// that has since been replaced does nothing.
func (d *Dispatcher) fire(key string, l *lane, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || l.gen != gen {
		return
	}

	l.timer = nil

	d.startLocked(key, l)
}

// startLocked launches the lane's runner unless one is already active. The
// active runner picks up the pending action when it finishes.
func (d *Dispatcher) startLocked(key string, l *lane) {
	if l.running || l.pending == nil {
		return
	}

	l.running = true
	d.wg.Add(1)

	go d.run(key, l)
}

// run drains a lane one action at a time.
func (d *Dispatcher) run(key string, l *lane) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		// A pending action still settling is started by its timer.
		if l.pending == nil || l.timer != nil || d.stopped {
			l.running = false
			if l.pending == nil && l.timer == nil {
				delete(d.lanes, key)
			}

			d.mu.Unlock()

			return
		}

		a := *l.pending
		l.pending = nil
		d.mu.Unlock()

		d.safeHandle(a)
	}
}

func (d *Dispatcher) safeHandle(a event.Action) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action handler panicked",
				slog.String("action", a.String()),
				slog.Any("error", r),
			)
		}
	}()

	d.handle(d.ctx, a)
}

// Pending reports how many keys have queued or running work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.lanes)
}

// Wait blocks until every queued action has been handled or dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels actions that have not started. Running actions are not
// interrupted; cancel the dispatcher's context for that.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for key, l := range d.lanes {
		if l.timer != nil && l.timer.Stop() {
			d.wg.Done()
		}

		l.timer = nil
		l.pending = nil

		if !l.running {
			delete(d.lanes, key)
		}
	}
}
