package pipe

import (
	"context"
	"errors"
)

// Resource is an external handle a pipe's data is ultimately drawn from —
// a database cursor, an open file, a leased connection — that must be
// released exactly once regardless of how iteration ends.
type Resource interface {
	Release(err error) error
}

// ManagedDispatcher wraps a Dispatcher with a Resource whose Release is
// called exactly once: with the triggering error when Next fails, or nil
// once the dispatcher is cleanly exhausted. Release runs before Close so a
// resource failure surfaces alongside the dispatcher shutdown error; both
// are returned by Close, and neither is returned by Next.
type ManagedDispatcher struct {
	*Dispatcher
	resource Resource
	released bool
}

// NewManagedDispatcher wraps d so that resource.Release is invoked exactly
// once when iteration ends, successfully or not.
func NewManagedDispatcher(d *Dispatcher, resource Resource) *ManagedDispatcher {
	return &ManagedDispatcher{Dispatcher: d, resource: resource}
}

// Next delegates to the wrapped Dispatcher, releasing the resource and
// closing the dispatcher the first time iteration ends (whether by error
// or by clean exhaustion).
func (m *ManagedDispatcher) Next(ctx context.Context) (PipeItem, bool, error) {
	item, ok, err := m.Dispatcher.Next(ctx)
	if err != nil {
		_ = m.release(err)       //nolint:errcheck
		_ = m.Dispatcher.Close() //nolint:errcheck
		return item, ok, err
	}
	if !ok {
		_ = m.release(nil)       //nolint:errcheck
		_ = m.Dispatcher.Close() //nolint:errcheck
	}
	return item, ok, nil
}

// Close releases the resource (with nil, if not already released) before
// closing the wrapped Dispatcher.
func (m *ManagedDispatcher) Close() error {
	releaseErr := m.release(nil)
	return errors.Join(releaseErr, m.Dispatcher.Close())
}

func (m *ManagedDispatcher) release(err error) error {
	if m.released {
		return nil
	}
	m.released = true
	return m.resource.Release(err)
}
