package pipe

import (
	"context"
	"reflect"
)

// Cloner lets an item type opt into explicit shallow-copy semantics when a
// Fork edge has copy_on_fork set. Types that don't implement it fall back
// to a reflect-based shallow copy of slices and maps; every other kind,
// pointers included, is passed through as the same value.
type Cloner interface {
	Clone() any
}

// ForkEdge is one target of a Fork step: a child pipe, the step index the
// routed item is considered to already be AT (so the dispatcher runs
// child[EntryStep+1] next — EntryStep -1 means "run from the child's own
// head"), and whether this edge gets its own shallow copy of the item or
// shares the first edge's reference.
type ForkEdge struct {
	Child      *Pipe
	EntryStep  int
	CopyOnFork bool
}

// ForkStep fans an item out to every registered edge. The first edge
// always receives the item by reference; later edges receive a shallow
// copy when CopyOnFork is set, or the same reference otherwise — matching
// the source system's "only the first branch is free" fan-out semantics.
type ForkStep struct {
	edges []ForkEdge
}

// NewFork creates an empty fork step.
func NewFork() *ForkStep {
	return &ForkStep{}
}

// HasChild reports whether child is already an edge of this fork,
// compared by pipe identity rather than pointer equality so a cloned pipe
// set still dedups correctly.
func (f *ForkStep) HasChild(child *Pipe) bool {
	for _, e := range f.edges {
		if e.Child.ID() == child.ID() {
			return true
		}
	}
	return false
}

// AddEdge registers child as a fork target. Adding the same child twice is
// a no-op, matching the dedup-by-identity rule fork assembly relies on when
// the same child pipe is reachable from more than one root.
func (f *ForkStep) AddEdge(child *Pipe, entryStep int, copyOnFork bool) {
	if f.HasChild(child) {
		return
	}
	f.edges = append(f.edges, ForkEdge{Child: child, EntryStep: entryStep, CopyOnFork: copyOnFork})
}

// Edges returns the fork's registered edges.
func (f *ForkStep) Edges() []ForkEdge {
	return f.edges
}

// Len reports the number of registered edges.
func (f *ForkStep) Len() int {
	return len(f.edges)
}

// AsStep returns the TransformFunc form of this fork, suitable for storing
// directly in a Pipe's step list. Invoking it never fails; it returns an
// Iterator of ResolvablePipeItem values, one per edge, which the dispatcher
// pushes as a new source exactly like any other Iterator-valued result.
func (f *ForkStep) AsStep() TransformFunc {
	return func(_ context.Context, item any, meta any) (any, error) {
		return newForkIterator(f.edges, item, meta), nil
	}
}

type forkIterator struct {
	edges []ForkEdge
	item  any
	meta  any
	pos   int
}

func newForkIterator(edges []ForkEdge, item any, meta any) Iterator {
	return &forkIterator{edges: edges, item: item, meta: meta}
}

func (it *forkIterator) Next(_ context.Context) (any, bool, error) {
	if it.pos >= len(it.edges) {
		return nil, false, nil
	}
	edge := it.edges[it.pos]
	value := it.item
	if it.pos > 0 && edge.CopyOnFork {
		value = shallowCopy(value)
	}
	it.pos++
	return ResolvablePipeItem{
		Item: value,
		Step: edge.EntryStep,
		Pipe: edge.Child,
		Meta: it.meta,
	}, true, nil
}

func (it *forkIterator) Close() error { return nil }

// shallowCopy duplicates v's top-level structure so the branches of a fork
// can mutate their own copy without affecting siblings. Types that
// implement Cloner control their own copy; slices and maps get a new
// header over the same elements; everything else — including plain
// structs passed by value, which Go already copies on assignment — passes
// through as-is.
func shallowCopy(v any) any {
	if c, ok := v.(Cloner); ok {
		return c.Clone()
	}
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	case reflect.Map:
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	default:
		return v
	}
}
