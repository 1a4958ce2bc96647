// Package pipe provides an untyped, pull-based data extraction engine:
// pipes of steps fed by a data source, fanned out through forks, and
// driven by a dispatcher that resolves whatever each step hands back —
// a plain value, a sub-iterator, a backgrounded callable, or a coroutine —
// one item at a time.
//
// # Core Concepts
//
//   - Pipe: an ordered list of steps rooted in either its own head (a
//     literal sequence, a bound Iterator, or an unevaluated Producer) or a
//     parent pipe it draws data from.
//   - TransformFunc: the normalized shape every non-head step takes,
//     (ctx, item, meta) -> (any, error). Transform/Apply/Effect/Mutate/
//     Enrich adapt a typed Go function into this shape at construction
//     time, the way user-defined processors are admitted into a pipz
//     pipeline.
//   - ForkStep: fans one item out to several child pipes, the first edge
//     by reference and the rest by shallow copy when CopyOnFork is set.
//   - Dispatcher: the scheduler that pulls items through a pipe graph one
//     step at a time, offloading Deferred work to a bounded worker pool
//     and Awaitable work to a single background async loop, draining
//     already-resolved futures ahead of pulling new source items.
//
// # Result Kinds
//
// A step's result is resolved by its dynamic type:
//
//   - a plain value: advance to the next step, or yield if this was the
//     last one
//   - Iterator: pushed as a new LIFO source, expanding into many items
//   - Deferred: offloaded to the worker pool, bounded by MaxParallelItems
//   - Awaitable: offloaded to the async loop
//   - ResolvablePipeItem: routes to a specific pipe and step directly,
//     the way a Fork edge addresses its child
//   - nil: the item is silently dropped
//
// # Usage Example
//
//	root, _ := pipe.FromData("orders", []any{order1, order2})
//	root.Append(pipe.Apply("validate", func(ctx context.Context, o Order) (Order, error) {
//	    if o.Total <= 0 {
//	        return o, errors.New("invalid total")
//	    }
//	    return o, nil
//	}))
//	root.Append(pipe.Effect("log", func(ctx context.Context, o Order) error {
//	    log.Printf("processing order %s", o.ID)
//	    return nil
//	}))
//
//	d, err := pipe.NewDispatcherFromPipe(ctx, root, pipe.DefaultConfig())
//	defer d.Close()
//	for {
//	    item, ok, err := d.Next(ctx)
//	    if err != nil || !ok {
//	        break
//	    }
//	    _ = item.Value
//	}
//
// # Observability
//
// The Dispatcher emits capitan signals, metricz counters, tracez spans and
// hookz lifecycle hooks for every item yielded, dropped, or offloaded, the
// way the ambient connectors in this module's lineage instrument
// themselves.
package pipe
