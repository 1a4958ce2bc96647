package pipe

import "context"

// Iterator is the pull-based shape every data source and every fork edge
// ultimately reduces to: a single item at a time, with an explicit ok flag
// for exhaustion and Close for releasing whatever the iterator holds open
// (a goroutine, a file, a network connection).
//
// This mirrors pipeline.Iterator[T] from the generic pipeline package in
// the reference corpus, generalized away from its type parameter: a pipe's
// steps are assembled dynamically and are not uniformly typed, so items
// travel as `any`.
type Iterator interface {
	Next(ctx context.Context) (value any, ok bool, err error)
	Close() error
}

// sliceIterator walks a fixed, already-materialized sequence. It grounds
// the "literal list of items" head-step case.
type sliceIterator struct {
	items []any
	pos   int
}

// NewSliceIterator wraps a fixed sequence of items as an Iterator.
func NewSliceIterator(items []any) Iterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) Next(_ context.Context) (any, bool, error) {
	if it.pos >= len(it.items) {
		return nil, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

func (it *sliceIterator) Close() error { return nil }

// channelIterator adapts a goroutine-driven producer (a "push" loop) into
// the pull-based Iterator shape, grounded on the channelIter pattern used
// to back Buffer/Parallel in the reference pipeline package.
type channelIterator struct {
	values chan any
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewChannelIterator starts fn in its own goroutine. fn must call yield for
// each item it produces and return when it is done or ctx is cancelled;
// its return value (if non-nil) surfaces as the final Next error.
func NewChannelIterator(ctx context.Context, fn func(ctx context.Context, yield func(any) bool) error) Iterator {
	runCtx, cancel := context.WithCancel(ctx)
	it := &channelIterator{
		values: make(chan any),
		errs:   make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(it.done)
		yield := func(v any) bool {
			select {
			case it.values <- v:
				return true
			case <-runCtx.Done():
				return false
			}
		}
		err := fn(runCtx, yield)
		it.errs <- err
	}()
	return it
}

func (it *channelIterator) Next(ctx context.Context) (any, bool, error) {
	select {
	case v, ok := <-it.values:
		if !ok {
			return nil, false, nil
		}
		return v, true, nil
	case err := <-it.errs:
		// producer finished; drain any values it sent before erroring out,
		// none remain since the send/errs write happens after the producer
		// returns, so at this point the channel is exhausted.
		return nil, false, err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (it *channelIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.cancel()
	<-it.done
	return nil
}

// Producer is a zero-argument callable resolved to an Iterator at bind
// time — the Go realization of a parametrized resource / generator
// function used unevaluated as a pipe head.
type Producer func(ctx context.Context) (Iterator, error)
