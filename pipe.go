package pipe

import (
	"context"
	"fmt"
	"sync"
)

// Pipe is an ordered list of steps, optionally rooted in a parent pipe
// instead of carrying its own head. A pipe with no parent must begin with
// a head step (a literal sequence, an already-built Iterator, or an
// unevaluated Producer); a pipe with a parent draws its data from the
// parent instead and its own steps are all transforms or forks.
//
// Pipe is safe for concurrent reads of its step list (StepAt, Len) while a
// dispatcher is running multiple in-flight items through it; structural
// mutation (Append, Insert, Remove, ReplaceGen, EvaluateGen) is expected to
// happen during graph assembly before a Dispatcher starts pulling from it.
// EvaluateGen is run on root pipes by NewDispatcherFromPipe and FromPipes
// before the Dispatcher is built; a Dispatcher never calls it itself.
type Pipe struct {
	mu       sync.RWMutex
	identity Identity
	parent   *Pipe
	steps    []any
	genBound bool
	genIndex int
}

// NewPipe creates an empty, headless pipe with no parent. Use FromData to
// create a pipe with a head already attached, or Append a head step
// afterward.
func NewPipe(name string) *Pipe {
	return &Pipe{identity: NewIdentity(name), genIndex: -1}
}

// NewChildPipe creates an empty pipe drawing its data from parent.
func NewChildPipe(name string, parent *Pipe) *Pipe {
	return &Pipe{identity: NewIdentity(name), parent: parent, genIndex: -1}
}

// FromData creates a root pipe with head already attached.
func FromData(name string, head any) (*Pipe, error) {
	p := NewPipe(name)
	if err := p.Append(head); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the pipe's human label.
func (p *Pipe) Name() string { return p.identity.Name() }

// ID returns the pipe's stable identity id, preserved across Clone unless
// the caller explicitly asks to mint a new one.
func (p *Pipe) ID() IdentityID { return p.identity.ID() }

// Parent returns the pipe this pipe draws data from, or nil if this pipe
// has its own head.
func (p *Pipe) Parent() *Pipe {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent
}

// HasParent reports whether this pipe draws data from a parent rather than
// its own head.
func (p *Pipe) HasParent() bool { return p.Parent() != nil }

// IsEmpty reports whether the pipe has no steps at all.
func (p *Pipe) IsEmpty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.steps) == 0
}

// Len returns the number of steps in this pipe (not counting any parent's
// steps).
func (p *Pipe) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.steps)
}

// StepAt returns the step at index i.
func (p *Pipe) StepAt(i int) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.steps) {
		return nil
	}
	return p.steps[i]
}

// IsDataBound reports whether this pipe is ultimately fed by real data:
// either it has its own head step, or some ancestor up its parent chain
// does.
func (p *Pipe) IsDataBound() bool {
	for cur := p; cur != nil; cur = cur.Parent() {
		if cur.Parent() == nil {
			return !cur.IsEmpty()
		}
	}
	return false
}

func isHeadValue(step any) bool {
	switch step.(type) {
	case []any, Iterator, Producer:
		return true
	default:
		return false
	}
}

func isStepValue(step any) bool {
	switch v := step.(type) {
	case TransformFunc, *ForkStep:
		return true
	case func(context.Context, any, any) (any, error):
		_ = v
		return true
	case func(context.Context, any) (any, error):
		return true
	default:
		return false
	}
}

// normalizeStep adapts a bare single-argument callable (item only, no
// meta) into a TransformFunc by wrapping it to discard meta — the Go
// realization of adapting an arity-1 callable into the pipe's 2-ary step
// shape at admission time, with no further introspection afterward.
func normalizeStep(step any) any {
	switch v := step.(type) {
	case func(context.Context, any, any) (any, error):
		return TransformFunc(v)
	case func(context.Context, any) (any, error):
		return TransformFunc(func(ctx context.Context, item any, _ any) (any, error) {
			return v(ctx, item)
		})
	case *ForkStep:
		return v
	default:
		return step
	}
}

// Append adds step to the end of the pipe. If the pipe has no parent and
// no steps yet, step must be a head value ([]any, Iterator, or Producer);
// otherwise it must be a transform step (TransformFunc, *ForkStep, or a
// bare single/two-argument callable of the expected shape).
func (p *Pipe) Append(step any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appendLocked(step)
}

func (p *Pipe) appendLocked(step any) error {
	if len(p.steps) == 0 && p.parent == nil {
		if !isHeadValue(step) {
			return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: fmt.Sprintf("head step must be a sequence, Iterator, or Producer, got %T", step)}
		}
		p.steps = append(p.steps, step)
		p.genIndex = 0
		return nil
	}
	if !isStepValue(step) {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: fmt.Sprintf("step must be a TransformFunc or *ForkStep, got %T", step)}
	}
	p.steps = append(p.steps, normalizeStep(step))
	return nil
}

// Insert adds step at index, shifting subsequent steps right. A head value
// may only be inserted as the first step of an empty, parentless pipe, and
// inserting at index 0 of a parentless pipe that already has a head is
// rejected.
func (p *Pipe) Insert(step any, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index > len(p.steps) {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "insert index out of range"}
	}
	if index == 0 && p.parent == nil && len(p.steps) > 0 {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "cannot insert before an existing head step"}
	}
	if isHeadValue(step) {
		if index != 0 || len(p.steps) != 0 || p.parent != nil {
			return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "head values may only be inserted as the first step of a headless, parentless pipe"}
		}
		p.steps = append(p.steps, nil)
		copy(p.steps[1:], p.steps[:len(p.steps)-1])
		p.steps[0] = step
		p.genIndex = 0
		return nil
	}
	if !isStepValue(step) {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: fmt.Sprintf("step must be a TransformFunc or *ForkStep, got %T", step)}
	}
	p.steps = append(p.steps, nil)
	copy(p.steps[index+1:], p.steps[index:len(p.steps)-1])
	p.steps[index] = normalizeStep(step)
	if p.genIndex >= 0 && index <= p.genIndex {
		p.genIndex++
	}
	return nil
}

// Remove deletes the step at index. Removing the generating step
// (gen_index) is rejected outright — a pipe always needs a data source.
func (p *Pipe) Remove(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.steps) {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "remove index out of range"}
	}
	if index == p.genIndex {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "cannot remove the generating step (gen_index)"}
	}
	p.steps = append(p.steps[:index], p.steps[index+1:]...)
	if p.genIndex >= 0 && index < p.genIndex {
		p.genIndex--
	}
	return nil
}

// ReplaceGen replaces the head step of a parentless pipe.
func (p *Pipe) ReplaceGen(step any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent != nil {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: "cannot replace head on a pipe bound to a parent"}
	}
	if !isHeadValue(step) {
		return &CreatePipeError{Pipe: Name(p.identity.Name()), Reason: fmt.Sprintf("head step must be a sequence, Iterator, or Producer, got %T", step)}
	}
	if len(p.steps) == 0 {
		p.steps = append(p.steps, step)
		p.genIndex = 0
	} else {
		p.steps[p.genIndex] = step
	}
	p.genBound = false
	return nil
}

// Fork attaches child as a fan-out target of this pipe, appending a new
// ForkStep as this pipe's last step if one is not already there.
func (p *Pipe) Fork(child *Pipe, entryStep int, copyOnFork bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.steps) > 0 {
		if fs, ok := p.steps[len(p.steps)-1].(*ForkStep); ok {
			fs.AddEdge(child, entryStep, copyOnFork)
			return nil
		}
	}
	fs := NewFork()
	fs.AddEdge(child, entryStep, copyOnFork)
	return p.appendLocked(fs)
}

// EnsureGenBound reports an error if this pipe is not data-bound — i.e. if
// neither it nor any ancestor has a head step set.
func (p *Pipe) EnsureGenBound() error {
	if !p.IsDataBound() {
		return &PipeNotBoundToDataError{Pipe: Name(p.identity.Name())}
	}
	return nil
}

// EvaluateGen resolves the root ancestor's head into a bound Iterator,
// calling a Producer or wrapping a literal sequence as needed. It is a
// no-op if the head is already a bound Iterator.
func (p *Pipe) EvaluateGen(ctx context.Context) error {
	root := p
	for root.Parent() != nil {
		root = root.Parent()
	}
	root.mu.Lock()
	defer root.mu.Unlock()

	if len(root.steps) == 0 || root.genIndex < 0 {
		return &PipeNotBoundToDataError{Pipe: Name(root.identity.Name())}
	}
	if root.genBound {
		return nil
	}
	switch v := root.steps[root.genIndex].(type) {
	case Iterator:
		root.genBound = true
		return nil
	case []any:
		root.steps[root.genIndex] = NewSliceIterator(v)
		root.genBound = true
		return nil
	case Producer:
		it, err := v(ctx)
		if err != nil {
			return err
		}
		if it == nil {
			return &InvalidTransformerGeneratorFunctionError{Pipe: Name(root.identity.Name()), Reason: "producer returned a nil Iterator"}
		}
		root.steps[root.genIndex] = it
		root.genBound = true
		return nil
	default:
		return &InvalidTransformerGeneratorFunctionError{Pipe: Name(root.identity.Name()), Reason: fmt.Sprintf("unexpected head type %T", v)}
	}
}

// FullPipe flattens this pipe's parent chain into a single, parentless
// Pipe: the furthest ancestor's steps first, down through this pipe's own
// steps last. It is used to run a pipe standalone even though it was
// originally defined relative to a parent.
func (p *Pipe) FullPipe() (*Pipe, error) {
	var chain []*Pipe
	for cur := p; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	// chain is leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if !chain[0].IsDataBound() {
		return nil, &PipeNotBoundToDataError{Pipe: Name(p.identity.Name())}
	}

	full := &Pipe{identity: p.identity, genIndex: -1}
	for _, node := range chain {
		node.mu.RLock()
		if node.genIndex >= 0 {
			full.genIndex = len(full.steps) + node.genIndex
			full.genBound = node.genBound
		}
		full.steps = append(full.steps, node.steps...)
		node.mu.RUnlock()
	}
	return full, nil
}

// Clone returns a shallow copy of this pipe's own steps. The parent
// pointer is left pointing at the original parent; callers that need the
// whole ancestor chain cloned (preserving shared-parent identity) should
// use ClonePipes instead of calling Clone directly.
func (p *Pipe) Clone(keepIdentity bool) *Pipe {
	p.mu.RLock()
	defer p.mu.RUnlock()

	identity := p.identity
	if !keepIdentity {
		identity = NewIdentity(p.identity.Name())
	}
	steps := make([]any, len(p.steps))
	copy(steps, p.steps)
	return &Pipe{
		identity: identity,
		parent:   p.parent,
		steps:    steps,
		genBound: p.genBound,
		genIndex: p.genIndex,
	}
}

// String implements fmt.Stringer for debugging.
func (p *Pipe) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("Pipe(%s, steps=%d, parent=%v)", p.identity.Name(), len(p.steps), p.parent != nil)
}
