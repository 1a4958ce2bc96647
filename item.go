package pipe

import "context"

// TransformFunc is the normalized shape every transform step takes once
// admitted to a Pipe: the item, the in-flight meta, and a result that is
// itself resolved by kind (plain value, Iterator, Deferred, Awaitable, or
// a fully-addressed ResolvablePipeItem). Returning (nil, nil) drops the
// item silently — there is no distinct "None" sentinel, matching the
// documented decision that a step cannot itself yield a literal nil item.
type TransformFunc func(ctx context.Context, item any, meta any) (any, error)

// DataItemWithMeta lets a step replace the meta travelling alongside an
// item, not just the item itself.
type DataItemWithMeta struct {
	Data any
	Meta any
}

// Deferred is a unit of work submitted to the dispatcher's bounded worker
// pool. Returning one from a TransformFunc offloads the work instead of
// running it inline.
type Deferred func() (any, error)

// Awaitable is work submitted to the dispatcher's single background async
// loop rather than the bounded worker pool — the Go analogue of handing
// back a coroutine instead of a plain callable.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// PipeItem is a fully resolved, final-step output of a Dispatcher: a value
// that has run every step of its pipe and is ready to leave the engine.
type PipeItem struct {
	Value any
	Step  int
	Pipe  *Pipe
	Meta  any
}

// ResolvablePipeItem is an in-flight item awaiting its next step. Step
// names the index the item currently sits AT (not the next one to run);
// the dispatcher decides whether that is already final or whether to run
// Pipe.StepAt(Step+1) next. Fork edges that route an item directly to a
// specific pipe and step (bypassing the pipe the item is currently
// travelling through) construct a ResolvablePipeItem explicitly.
type ResolvablePipeItem struct {
	Item any
	Step int
	Pipe *Pipe
	Meta any
}

// SourcePipeItem is a pushed Iterator source together with the (step,
// pipe, meta) context that items pulled from it should be wrapped in,
// unless the pulled value is itself a ResolvablePipeItem (as Fork edges
// produce), in which case it is used as-is.
type SourcePipeItem struct {
	Source Iterator
	Step   int
	Pipe   *Pipe
	Meta   any
}
