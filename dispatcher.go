package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Config holds the tunables for a Dispatcher, matching the extract config
// section's fields and defaults.
type Config struct {
	MaxParallelItems    int
	Workers             int
	FuturesPollInterval time.Duration
	CopyOnFork          bool
}

// DefaultConfig returns the engine's baseline tunables.
func DefaultConfig() Config {
	return Config{
		MaxParallelItems:    20,
		Workers:             5,
		FuturesPollInterval: 10 * time.Millisecond,
		CopyOnFork:          false,
	}
}

// Observability constants for the Dispatcher.
const (
	DispatcherItemsYielded     = metricz.Key("dispatcher.items.yielded.total")
	DispatcherItemsDropped     = metricz.Key("dispatcher.items.dropped.total")
	DispatcherFuturesScheduled = metricz.Key("dispatcher.futures.scheduled.total")
	DispatcherFuturesFailed    = metricz.Key("dispatcher.futures.failed.total")
	DispatcherSourcesExpanded  = metricz.Key("dispatcher.sources.expanded.total")

	DispatcherNextSpan = tracez.Key("dispatcher.next")
	DispatcherTagOutcome = tracez.Tag("dispatcher.outcome")

	DispatchEventItem         = hookz.Key("dispatcher.item")
	DispatchEventDrop         = hookz.Key("dispatcher.drop")
	DispatchEventFutureError  = hookz.Key("dispatcher.future_error")
)

// DispatchEvent is emitted via hooks for item yields, drops, and future
// failures.
type DispatchEvent struct {
	Pipe      Name
	Step      int
	Err       error
	Timestamp time.Time
}

// futureEntry is in-flight offloaded work together with the (step, pipe,
// meta) context it resumes at once resolved.
type futureEntry struct {
	future Future
	step   int
	pipe   *Pipe
	meta   any
}

// resolvable is an item awaiting resolution: the current position it sits
// at and the value there.
type resolvable struct {
	item any
	step int
	pipe *Pipe
	meta any
}

// Dispatcher is the driving scheduler over a set of root pipes: it pulls
// items from a LIFO stack of sources, advances each through its pipe one
// step at a time, offloads deferred/awaitable results to a bounded worker
// pool or a single background async loop, and drains resolved futures
// ahead of pulling new source items — matching the source system's
// iterator-protocol scheduler exactly.
//
// A single Dispatcher is driven by a single caller at a time (like any
// pull iterator); the worker pool and async loop run concurrently in the
// background regardless.
type Dispatcher struct {
	cfg   Config
	clock clockz.Clock

	sources []SourcePipeItem
	futures []futureEntry

	pool      *workerPool
	poolOnce  sync.Once
	async     *asyncLoop
	asyncOnce sync.Once

	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[DispatchEvent]

	closeOnce sync.Once
	closeErr  error
}

// NewDispatcher creates a Dispatcher over roots, which must already be
// data-bound and have had EvaluateGen run (FromPipes and NewDispatcherFromPipe
// do this for you). Roots are pushed so the first root given is pulled
// from first.
func NewDispatcher(roots []*Pipe, cfg Config) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:     cfg,
		clock:   clockz.RealClock,
		metrics: metricz.New(),
		tracer:  tracez.New(),
		hooks:   hookz.New[DispatchEvent](),
	}
	d.metrics.Counter(DispatcherItemsYielded)
	d.metrics.Counter(DispatcherItemsDropped)
	d.metrics.Counter(DispatcherFuturesScheduled)
	d.metrics.Counter(DispatcherFuturesFailed)
	d.metrics.Counter(DispatcherSourcesExpanded)

	_ = capitan.Info(context.Background(), SignalDispatcherOpened, //nolint:errcheck
		FieldMaxParallel.Field(cfg.MaxParallelItems),
		FieldTimestamp.Field(float64(d.clock.Now().Unix())),
	)

	for i := len(roots) - 1; i >= 0; i-- {
		root := roots[i]
		it, ok := root.StepAt(0).(Iterator)
		if !ok {
			return nil, &ParametrizedResourceUnboundError{Pipe: Name(root.Name())}
		}
		d.sources = append(d.sources, SourcePipeItem{Source: it, Step: 0, Pipe: root, Meta: nil})
	}
	return d, nil
}

// NewDispatcherFromPipe builds a Dispatcher for a single pipe, flattening
// its parent chain first via FullPipe.
func NewDispatcherFromPipe(ctx context.Context, p *Pipe, cfg Config) (*Dispatcher, error) {
	full, err := p.FullPipe()
	if err != nil {
		return nil, err
	}
	if err := full.EvaluateGen(ctx); err != nil {
		return nil, err
	}
	return NewDispatcher([]*Pipe{full}, cfg)
}

// NewDispatcherFromPipes builds a Dispatcher over a fork graph assembled
// from pipes via FromPipes.
func NewDispatcherFromPipes(ctx context.Context, pipes []*Pipe, yieldParents bool, cfg Config) (*Dispatcher, error) {
	roots, err := FromPipes(ctx, pipes, yieldParents, cfg.CopyOnFork)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(roots, cfg)
}

// WithClock overrides the clock used for the idle-wait sleep, for tests.
func (d *Dispatcher) WithClock(clock clockz.Clock) *Dispatcher {
	d.clock = clock
	return d
}

// Metrics returns the dispatcher's metric registry.
func (d *Dispatcher) Metrics() *metricz.Registry { return d.metrics }

// Tracer returns the dispatcher's tracer.
func (d *Dispatcher) Tracer() *tracez.Tracer { return d.tracer }

// OnItem registers a hook fired whenever an item is yielded.
func (d *Dispatcher) OnItem(fn func(context.Context, DispatchEvent) error) error {
	_, err := d.hooks.Hook(DispatchEventItem, fn)
	return err
}

// OnDrop registers a hook fired whenever an item is silently dropped.
func (d *Dispatcher) OnDrop(fn func(context.Context, DispatchEvent) error) error {
	_, err := d.hooks.Hook(DispatchEventDrop, fn)
	return err
}

// OnFutureError registers a hook fired whenever offloaded work fails.
func (d *Dispatcher) OnFutureError(fn func(context.Context, DispatchEvent) error) error {
	_, err := d.hooks.Hook(DispatchEventFutureError, fn)
	return err
}

func (d *Dispatcher) ensurePool() {
	d.poolOnce.Do(func() {
		d.pool = newWorkerPool(d.cfg.Workers)
	})
}

func (d *Dispatcher) ensureAsyncLoop() {
	d.asyncOnce.Do(func() {
		d.async = newAsyncLoop()
	})
}

// Next advances the scheduler and returns the next fully resolved item. It
// returns (_, false, nil) when every source and future has been exhausted.
func (d *Dispatcher) Next(ctx context.Context) (PipeItem, bool, error) {
	ctx, span := d.tracer.StartSpan(ctx, DispatcherNextSpan)
	outcome := "pending"
	defer func() {
		span.SetTag(DispatcherTagOutcome, outcome)
		span.Finish()
	}()

	var cur *resolvable
	for {
		if cur == nil {
			r, err := d.resolveFutures()
			if err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			cur = r
		}
		if cur == nil {
			r, err := d.pullSource(ctx)
			if err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			cur = r
		}
		if cur == nil {
			if len(d.sources) == 0 && len(d.futures) == 0 {
				outcome = "exhausted"
				return PipeItem{}, false, nil
			}
			if err := d.idleWait(ctx); err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			continue
		}

		switch v := cur.item.(type) {
		case Iterator:
			d.sources = append(d.sources, SourcePipeItem{Source: v, Step: cur.step, Pipe: cur.pipe, Meta: cur.meta})
			d.metrics.Counter(DispatcherSourcesExpanded).Inc()
			_ = capitan.Info(ctx, SignalSourceExpanded, //nolint:errcheck
				FieldPipeName.Field(cur.pipe.Name()),
				FieldStepIndex.Field(cur.step),
				FieldSourceDepth.Field(len(d.sources)),
				FieldTimestamp.Field(float64(d.clock.Now().Unix())),
			)
			cur = nil
			continue
		case Deferred:
			sched, err := d.submitIfFree(ctx, cur, func() Future {
				d.ensurePool()
				return d.pool.Submit(v)
			})
			if err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			if sched {
				cur = nil
				continue
			}
			if err := d.idleWait(ctx); err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			continue
		case Awaitable:
			sched, err := d.submitIfFree(ctx, cur, func() Future {
				d.ensureAsyncLoop()
				return d.async.Submit(ctx, v)
			})
			if err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			if sched {
				cur = nil
				continue
			}
			if err := d.idleWait(ctx); err != nil {
				outcome = "error"
				return PipeItem{}, false, err
			}
			continue
		}

		if dw, ok := cur.item.(DataItemWithMeta); ok {
			cur.item, cur.meta = dw.Data, dw.Meta
		}

		if cur.item == nil {
			d.metrics.Counter(DispatcherItemsDropped).Inc()
			_ = capitan.Warn(ctx, SignalItemDropped, //nolint:errcheck
				FieldPipeName.Field(cur.pipe.Name()),
				FieldStepIndex.Field(cur.step),
				FieldTimestamp.Field(float64(d.clock.Now().Unix())),
			)
			_ = d.hooks.Emit(ctx, DispatchEventDrop, DispatchEvent{Pipe: Name(cur.pipe.Name()), Step: cur.step, Timestamp: time.Now()}) //nolint:errcheck
			cur = nil
			continue
		}

		if cur.step >= cur.pipe.Len()-1 {
			d.metrics.Counter(DispatcherItemsYielded).Inc()
			_ = capitan.Info(ctx, SignalItemYielded, //nolint:errcheck
				FieldPipeName.Field(cur.pipe.Name()),
				FieldStepIndex.Field(cur.step),
				FieldTimestamp.Field(float64(d.clock.Now().Unix())),
			)
			_ = d.hooks.Emit(ctx, DispatchEventItem, DispatchEvent{Pipe: Name(cur.pipe.Name()), Step: cur.step, Timestamp: time.Now()}) //nolint:errcheck
			outcome = "yielded"
			return PipeItem{Value: cur.item, Step: cur.step, Pipe: cur.pipe, Meta: cur.meta}, true, nil
		}

		next, err := d.invokeStep(ctx, cur)
		if err != nil {
			outcome = "error"
			return PipeItem{}, false, err
		}
		cur = next
	}
}

func (d *Dispatcher) invokeStep(ctx context.Context, cur *resolvable) (*resolvable, error) {
	stepIndex := cur.step + 1
	raw := cur.pipe.StepAt(stepIndex)
	fn, ok := asTransformFunc(raw)
	if !ok {
		return nil, &PipeItemProcessingError{Pipe: Name(cur.pipe.Name()), Step: stepIndex, Reason: fmt.Sprintf("step is not invocable: %T", raw)}
	}

	start := d.clock.Now()
	var result any
	var err error
	func() {
		defer recoverStepPanic(Name(cur.pipe.Name()), stepIndex, &result, &err)
		result, err = fn(ctx, cur.item, cur.meta)
	}()
	if err != nil {
		var tm *typeMismatchError
		if errors.As(err, &tm) {
			return nil, &InvalidStepFunctionArgumentsError{Pipe: Name(cur.pipe.Name()), Step: stepIndex, Reason: tm.Error()}
		}
		return nil, newStepError(Name(cur.pipe.Name()), stepIndex, err, start)
	}

	if rp, ok := result.(ResolvablePipeItem); ok {
		return &resolvable{item: rp.Item, step: rp.Step, pipe: rp.Pipe, meta: rp.Meta}, nil
	}
	return &resolvable{item: result, step: stepIndex, pipe: cur.pipe, meta: cur.meta}, nil
}

func asTransformFunc(raw any) (TransformFunc, bool) {
	switch v := raw.(type) {
	case TransformFunc:
		return v, true
	case *ForkStep:
		return v.AsStep(), true
	default:
		return nil, false
	}
}

func (d *Dispatcher) submitIfFree(ctx context.Context, cur *resolvable, submit func() Future) (bool, error) {
	if len(d.futures) < d.cfg.MaxParallelItems || d.firstDoneFutureIndex() >= 0 {
		fut := submit()
		d.futures = append(d.futures, futureEntry{future: fut, step: cur.step, pipe: cur.pipe, meta: cur.meta})
		d.metrics.Counter(DispatcherFuturesScheduled).Inc()
		_ = capitan.Info(ctx, SignalFutureScheduled, //nolint:errcheck
			FieldPipeName.Field(cur.pipe.Name()),
			FieldStepIndex.Field(cur.step),
			FieldFutureCount.Field(len(d.futures)),
			FieldTimestamp.Field(float64(d.clock.Now().Unix())),
		)
		return true, nil
	}
	_ = capitan.Warn(ctx, SignalFuturePoolWait, //nolint:errcheck
		FieldPipeName.Field(cur.pipe.Name()),
		FieldStepIndex.Field(cur.step),
		FieldMaxParallel.Field(d.cfg.MaxParallelItems),
		FieldTimestamp.Field(float64(d.clock.Now().Unix())),
	)
	return false, nil
}

func (d *Dispatcher) firstDoneFutureIndex() int {
	for i, f := range d.futures {
		if f.future.Done() {
			return i
		}
	}
	return -1
}

func (d *Dispatcher) resolveFutures() (*resolvable, error) {
	for {
		idx := d.firstDoneFutureIndex()
		if idx < 0 {
			return nil, nil
		}
		entry := d.futures[idx]
		d.futures = append(d.futures[:idx], d.futures[idx+1:]...)
		if entry.future.Cancelled() {
			continue
		}
		v, err := entry.future.Result()
		if err != nil {
			d.metrics.Counter(DispatcherFuturesFailed).Inc()
			_ = capitan.Error(context.Background(), SignalFutureFailed, //nolint:errcheck
				FieldPipeName.Field(entry.pipe.Name()),
				FieldStepIndex.Field(entry.step),
				FieldError.Field(err.Error()),
				FieldTimestamp.Field(float64(d.clock.Now().Unix())),
			)
			_ = d.hooks.Emit(context.Background(), DispatchEventFutureError, DispatchEvent{Pipe: Name(entry.pipe.Name()), Step: entry.step, Err: err, Timestamp: time.Now()}) //nolint:errcheck
			return nil, err
		}
		if dw, ok := v.(DataItemWithMeta); ok {
			return &resolvable{item: dw.Data, step: entry.step, pipe: entry.pipe, meta: dw.Meta}, nil
		}
		return &resolvable{item: v, step: entry.step, pipe: entry.pipe, meta: entry.meta}, nil
	}
}

func (d *Dispatcher) pullSource(ctx context.Context) (*resolvable, error) {
	for len(d.sources) > 0 {
		top := d.sources[len(d.sources)-1]
		v, ok, err := top.Source.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = top.Source.Close()
			d.sources = d.sources[:len(d.sources)-1]
			continue
		}
		if rp, ok2 := v.(ResolvablePipeItem); ok2 {
			return &resolvable{item: rp.Item, step: rp.Step, pipe: rp.Pipe, meta: rp.Meta}, nil
		}
		if dw, ok2 := v.(DataItemWithMeta); ok2 {
			return &resolvable{item: dw.Data, step: top.Step, pipe: top.Pipe, meta: dw.Meta}, nil
		}
		return &resolvable{item: v, step: top.Step, pipe: top.Pipe, meta: top.Meta}, nil
	}
	return nil, nil
}

func (d *Dispatcher) idleWait(ctx context.Context) error {
	select {
	case <-d.clock.After(d.cfg.FuturesPollInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any in-flight futures, closes every open source, shuts
// down the worker pool and async loop (waiting for tasks already running
// to finish), and releases observability resources. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, f := range d.futures {
			if !f.future.Done() {
				f.future.Cancel()
			}
		}
		d.futures = nil

		for _, s := range d.sources {
			if err := s.Source.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		d.sources = nil

		if d.pool != nil {
			if err := d.pool.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if d.async != nil {
			if err := d.async.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if d.tracer != nil {
			d.tracer.Close()
		}
		d.hooks.Close()
		_ = capitan.Info(context.Background(), SignalDispatcherClosed, FieldTimestamp.Field(float64(d.clock.Now().Unix()))) //nolint:errcheck

		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
