package pipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/capitan"
)

// stubClock is a minimal clockz.Clock double: Now/Since track a fixed wall
// clock instant, while After always fires immediately so a dispatcher's
// idle-wait loop never actually sleeps in tests.
type stubClock struct{ base time.Time }

func (c stubClock) Now() time.Time                  { return c.base }
func (c stubClock) Since(t time.Time) time.Duration { return c.base.Sub(t) }
func (c stubClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.base
	return ch
}
func (c stubClock) WithTimeout(ctx context.Context, _ time.Duration) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

func collectAll(t *testing.T, d *Dispatcher) ([]PipeItem, error) {
	t.Helper()
	var items []PipeItem
	for {
		item, ok, err := d.Next(context.Background())
		if err != nil {
			return items, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, item)
	}
}

func TestDispatcherLinearPipe(t *testing.T) {
	root, err := FromData("nums", []any{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := root.Append(Transform("double", func(_ context.Context, n int) int { return n * 2 })); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		want := (i + 1) * 2
		if item.Value != want {
			t.Errorf("item %d: expected %d, got %v", i, want, item.Value)
		}
	}
}

func TestDispatcherFilterDropsNilItems(t *testing.T) {
	root, _ := FromData("nums", []any{1, 2, 3, 4})
	evensOnly := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		n := item.(int)
		if n%2 != 0 {
			return nil, nil
		}
		return n, nil
	})
	if err := root.Append(evensOnly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 surviving items, got %d", len(items))
	}
}

func TestDispatcherExpandsViaIterator(t *testing.T) {
	root, _ := FromData("batches", []any{[]any{"a", "b"}, []any{"c"}})
	expand := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		return NewSliceIterator(item.([]any)), nil
	})
	if err := root.Append(expand); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 expanded items, got %d", len(items))
	}
}

func TestDispatcherForkFansOut(t *testing.T) {
	root, _ := FromData("root", []any{1, 2})
	childA := NewChildPipe("a", root)
	tagA := TransformFunc(func(_ context.Context, _ any, _ any) (any, error) { return "a", nil })
	if err := childA.Append(tagA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	childB := NewChildPipe("b", root)
	tagB := TransformFunc(func(_ context.Context, _ any, _ any) (any, error) { return "b", nil })
	if err := childB.Append(tagB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipes(context.Background(), []*Pipe{childA, childB}, false, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 2 items x 2 branches = 4, got %d", len(items))
	}
}

func TestDispatcherDeferredOffloadBoundedByMaxParallelItems(t *testing.T) {
	root, _ := FromData("nums", []any{1, 2, 3, 4, 5})
	offload := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		n := item.(int)
		return Deferred(func() (any, error) {
			return n * 10, nil
		}), nil
	})
	if err := root.Append(offload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxParallelItems = 2
	cfg.Workers = 2
	d, err := NewDispatcherFromPipe(context.Background(), root, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected all 5 items eventually, got %d", len(items))
	}
}

func TestDispatcherPropagatesStepFailure(t *testing.T) {
	boom := errors.New("boom")
	root, _ := FromData("nums", []any{1, 2, 3})
	if err := root.Append(Apply("fails_on_two", func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	_, err = collectAll(t, d)
	if err == nil {
		t.Fatal("expected the second item's failure to propagate")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a *StepError, got %T: %v", err, err)
	}
	if !errors.Is(stepErr, boom) {
		t.Errorf("expected the StepError to wrap %v", boom)
	}
}

func TestDispatcherAwaitableOffload(t *testing.T) {
	root, _ := FromData("nums", []any{1, 2})
	offload := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		n := item.(int)
		return fakeAwaitable{val: n * 100}, nil
	})
	if err := root.Append(offload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	items, err := collectAll(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestDispatcherWithClockUsesInjectedClock(t *testing.T) {
	root, _ := FromData("nums", []any{1})
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.WithClock(stubClock{base: time.Now()})
	defer d.Close()

	item, ok, err := d.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected the single item, got ok=%v err=%v", ok, err)
	}
	if item.Value != 1 {
		t.Errorf("expected 1, got %v", item.Value)
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	root, _ := FromData("nums", []any{1})
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestDispatcherEmitsItemYieldedSignal(t *testing.T) {
	var received bool
	var pipeName string
	listener := capitan.Hook(SignalItemYielded, func(_ context.Context, e *capitan.Event) {
		received = true
		pipeName, _ = FieldPipeName.From(e)
	})
	defer listener.Close()

	root, _ := FromData("signal-yield", []any{1})
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if _, _, err := d.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !received {
		t.Fatal("expected SignalItemYielded to fire")
	}
	if pipeName != "signal-yield" {
		t.Errorf("expected pipe name %q, got %q", "signal-yield", pipeName)
	}
}

func TestDispatcherEmitsItemDroppedSignal(t *testing.T) {
	var received bool
	listener := capitan.Hook(SignalItemDropped, func(_ context.Context, _ *capitan.Event) {
		received = true
	})
	defer listener.Close()

	root, _ := FromData("signal-drop", []any{1})
	dropAll := TransformFunc(func(_ context.Context, _ any, _ any) (any, error) { return nil, nil })
	if err := root.Append(dropAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if _, ok, err := d.Next(context.Background()); err != nil || ok {
		t.Fatalf("expected the dropped item to yield nothing, got ok=%v err=%v", ok, err)
	}
	if !received {
		t.Fatal("expected SignalItemDropped to fire")
	}
}

func TestDispatcherEmitsSourceExpandedSignal(t *testing.T) {
	var received bool
	listener := capitan.Hook(SignalSourceExpanded, func(_ context.Context, _ *capitan.Event) {
		received = true
	})
	defer listener.Close()

	root, _ := FromData("signal-expand", []any{[]any{"x", "y"}})
	expand := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		return NewSliceIterator(item.([]any)), nil
	})
	if err := root.Append(expand); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if _, err := collectAll(t, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !received {
		t.Fatal("expected SignalSourceExpanded to fire")
	}
}

func TestDispatcherEmitsFutureScheduledAndOpenedSignals(t *testing.T) {
	var scheduled, opened bool
	schedListener := capitan.Hook(SignalFutureScheduled, func(_ context.Context, _ *capitan.Event) { scheduled = true })
	defer schedListener.Close()
	openListener := capitan.Hook(SignalDispatcherOpened, func(_ context.Context, _ *capitan.Event) { opened = true })
	defer openListener.Close()

	root, _ := FromData("signal-future", []any{1})
	offload := TransformFunc(func(_ context.Context, item any, _ any) (any, error) {
		n := item.(int)
		return Deferred(func() (any, error) { return n * 10, nil }), nil
	})
	if err := root.Append(offload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if !opened {
		t.Fatal("expected SignalDispatcherOpened to fire on construction")
	}
	if _, err := collectAll(t, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scheduled {
		t.Fatal("expected SignalFutureScheduled to fire")
	}
}

func TestDispatcherEmitsFutureFailedSignal(t *testing.T) {
	boom := errors.New("boom")
	var received bool
	var receivedErr string
	listener := capitan.Hook(SignalFutureFailed, func(_ context.Context, e *capitan.Event) {
		received = true
		receivedErr, _ = FieldError.From(e)
	})
	defer listener.Close()

	root, _ := FromData("signal-future-fail", []any{1})
	offload := TransformFunc(func(_ context.Context, _ any, _ any) (any, error) {
		return Deferred(func() (any, error) { return nil, boom }), nil
	})
	if err := root.Append(offload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Close()

	if _, err := collectAll(t, d); err == nil {
		t.Fatal("expected the offloaded failure to propagate")
	}
	if !received {
		t.Fatal("expected SignalFutureFailed to fire")
	}
	if receivedErr != boom.Error() {
		t.Errorf("expected error field %q, got %q", boom.Error(), receivedErr)
	}
}

func TestDispatcherEmitsClosedSignal(t *testing.T) {
	var received bool
	listener := capitan.Hook(SignalDispatcherClosed, func(_ context.Context, _ *capitan.Event) { received = true })
	defer listener.Close()

	root, _ := FromData("signal-close", []any{1})
	d, err := NewDispatcherFromPipe(context.Background(), root, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !received {
		t.Fatal("expected SignalDispatcherClosed to fire")
	}
}

func TestDispatcherRejectsUnboundRoot(t *testing.T) {
	p := NewPipe("unbound")
	_, err := NewDispatcher([]*Pipe{p}, DefaultConfig())
	if err == nil {
		t.Fatal("expected an error constructing a Dispatcher over an unbound root")
	}
	var unbound *ParametrizedResourceUnboundError
	if !errors.As(err, &unbound) {
		t.Fatalf("expected a *ParametrizedResourceUnboundError, got %T", err)
	}
}
