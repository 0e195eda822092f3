package watch

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inkwatch/internal/event"
	"github.com/hupe1980/inkwatch/internal/logging"
)

type recorder struct {
	mu      sync.Mutex
	handled []event.Action
}

func (r *recorder) add(a event.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handled = append(r.handled, a)
}

func (r *recorder) actions() []event.Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]event.Action(nil), r.handled...)
}

func convert(path string) event.Action { return event.Action{Op: event.OpConvert, Path: path} }
func remove(path string) event.Action  { return event.Action{Op: event.OpRemove, Path: path} }

func TestDispatcher_SameKeyIsSerializedAndLatestWins(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	var active, maxActive atomic.Int32

	d := NewDispatcher(context.Background(), 0, func(_ context.Context, a event.Action) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}

		started <- struct{}{}
		<-release

		rec.add(a)
		active.Add(-1)
	}, logging.Discard())

	d.Submit(convert("/w/fig.svg"))
	<-started

	// Both arrive while the first render is still running.
	d.Submit(convert("/w/fig.svg"))
	d.Submit(remove("/w/fig.svg"))

	close(release)
	d.Wait()

	assert.Equal(t, []event.Action{convert("/w/fig.svg"), remove("/w/fig.svg")}, rec.actions())
	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_DifferentKeysRunInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)

	d := NewDispatcher(context.Background(), 0, func(_ context.Context, a event.Action) {
		started <- a.Path
		<-release
	}, logging.Discard())

	d.Submit(convert("/w/a.svg"))
	d.Submit(convert("/w/b.svg"))

	var got []string

	for range 2 {
		select {
		case p := <-started:
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatal("second key did not start while the first was running")
		}
	}

	assert.ElementsMatch(t, []string{"/w/a.svg", "/w/b.svg"}, got)
	assert.Equal(t, 2, d.Pending())

	close(release)
	d.Wait()
}

func TestDispatcher_RenameOfBusySourceIsSplit(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	var onOld atomic.Int32

	d := NewDispatcher(context.Background(), 0, func(_ context.Context, a event.Action) {
		if a.Path == "/w/old.svg" || a.From == "/w/old.svg" {
			onOld.Add(1)
			defer onOld.Add(-1)
		}

		if a == convert("/w/old.svg") {
			started <- struct{}{}
			<-release
		}

		rec.add(a)
	}, logging.Discard())

	d.Submit(convert("/w/old.svg"))
	<-started

	d.Submit(event.Action{Op: event.OpRename, Path: "/w/new.svg", From: "/w/old.svg"})

	// The convert of the new name does not wait on the old lane.
	assert.Eventually(t, func() bool {
		return slices.Contains(rec.actions(), convert("/w/new.svg"))
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), onOld.Load())

	close(release)
	d.Wait()

	assert.ElementsMatch(t, []event.Action{
		convert("/w/old.svg"),
		remove("/w/old.svg"),
		convert("/w/new.svg"),
	}, rec.actions())
}

func TestDispatcher_RenameOfIdleSourceMovesOutputs(t *testing.T) {
	rec := &recorder{}

	d := NewDispatcher(context.Background(), 0, func(_ context.Context, a event.Action) {
		rec.add(a)
	}, logging.Discard())

	rename := event.Action{Op: event.OpRename, Path: "/w/new.svg", From: "/w/old.svg"}
	d.Submit(rename)
	d.Wait()

	assert.Equal(t, []event.Action{rename}, rec.actions())
}

func TestDispatcher_DelayCoalescesBurst(t *testing.T) {
	rec := &recorder{}

	d := NewDispatcher(context.Background(), 100*time.Millisecond, func(_ context.Context, a event.Action) {
		rec.add(a)
	}, logging.Discard())

	for range 5 {
		d.Submit(convert("/w/fig.svg"))
		time.Sleep(2 * time.Millisecond)
	}

	d.Submit(remove("/w/fig.svg"))
	d.Wait()

	assert.Equal(t, []event.Action{remove("/w/fig.svg")}, rec.actions())
}

func TestDispatcher_StopDropsUnstarted(t *testing.T) {
	var calls atomic.Int32

	d := NewDispatcher(context.Background(), time.Hour, func(context.Context, event.Action) {
		calls.Add(1)
	}, logging.Discard())

	d.Submit(convert("/w/a.svg"))
	d.Submit(convert("/w/b.svg"))
	require.Equal(t, 2, d.Pending())

	d.Stop()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked after Stop")
	}

	d.Submit(convert("/w/c.svg"))

	assert.Zero(t, d.Pending())
	assert.Zero(t, calls.Load())
}

func TestDispatcher_RecoversFromPanickingHandler(t *testing.T) {
	rec := &recorder{}

	d := NewDispatcher(context.Background(), 0, func(_ context.Context, a event.Action) {
		if a.Op == event.OpRemove {
			panic("boom")
		}

		rec.add(a)
	}, logging.Discard())

	d.Submit(remove("/w/fig.svg"))
	d.Wait()

	d.Submit(convert("/w/fig.svg"))
	d.Wait()

	assert.Equal(t, []event.Action{convert("/w/fig.svg")}, rec.actions())
}

func TestDispatcher_PassesContext(t *testing.T) {
	type key struct{}

	ctx := context.WithValue(context.Background(), key{}, "v")

	var got atomic.Value

	d := NewDispatcher(ctx, 0, func(ctx context.Context, _ event.Action) {
		got.Store(ctx.Value(key{}))
	}, nil)

	d.Submit(convert("/w/fig.svg"))
	d.Wait()

	assert.Equal(t, "v", got.Load())
}
