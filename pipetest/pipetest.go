// Package pipetest provides test doubles for pipe-based code: a
// call-tracking mock transform step and a call-tracking mock producer,
// adapted from the teacher library's MockProcessor[T] away from generics
// since pipe steps are untyped.
package pipetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riverkit/pipe"
)

// MockCall records one invocation of a mock step.
type MockCall struct {
	Input     any
	Meta      any
	Timestamp time.Time
}

// MockTransform is a configurable pipe.TransformFunc double: it records
// every call, and returns a configured value/error, after an optional
// delay, or panics if configured to.
type MockTransform struct {
	t           *testing.T
	name        string
	mu          sync.RWMutex
	returnVal   any
	returnErr   error
	delay       time.Duration
	panicMsg    string
	callCount   int64
	callHistory []MockCall
	maxHistory  int
}

// NewMockTransform creates a mock transform step named name.
func NewMockTransform(t *testing.T, name string) *MockTransform {
	return &MockTransform{t: t, name: name, maxHistory: 100}
}

// WithReturn configures the value and error every subsequent call returns.
func (m *MockTransform) WithReturn(val any, err error) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal, m.returnErr = val, err
	return m
}

// WithDelay configures a delay before each call returns, interruptible by
// context cancellation.
func (m *MockTransform) WithDelay(d time.Duration) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic with msg on every call, for
// exercising Dispatcher's recoverStepPanic path.
func (m *MockTransform) WithPanic(msg string) *MockTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// Step returns the pipe.TransformFunc to append to a Pipe.
func (m *MockTransform) Step() pipe.TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		atomic.AddInt64(&m.callCount, 1)

		m.mu.Lock()
		if m.maxHistory > 0 {
			m.callHistory = append(m.callHistory, MockCall{Input: item, Meta: meta, Timestamp: time.Now()})
			if len(m.callHistory) > m.maxHistory {
				m.callHistory = m.callHistory[1:]
			}
		}
		delay, val, err, panicMsg := m.delay, m.returnVal, m.returnErr, m.panicMsg
		m.mu.Unlock()

		if panicMsg != "" {
			panic(panicMsg)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return val, err
	}
}

// CallCount returns the number of times Step's function has run.
func (m *MockTransform) CallCount() int { return int(atomic.LoadInt64(&m.callCount)) }

// CallHistory returns a copy of every recorded call.
func (m *MockTransform) CallHistory() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockCall, len(m.callHistory))
	copy(out, m.callHistory)
	return out
}

// AssertCalled verifies Step ran exactly n times.
func AssertCalled(t *testing.T, mock *MockTransform, n int) {
	t.Helper()
	if got := mock.CallCount(); got != n {
		t.Errorf("expected mock %q to be called %d times, got %d", mock.name, n, got)
	}
}

// AssertNotCalled verifies Step never ran.
func AssertNotCalled(t *testing.T, mock *MockTransform) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// MockProducer is a configurable pipe.Producer double backing a pipe's
// head: each call to the returned Producer hands back an Iterator over a
// fixed item slice, tracking how many times the producer itself was
// invoked (i.e. how many times EvaluateGen ran it).
type MockProducer struct {
	mu        sync.Mutex
	items     []any
	callCount int
	err       error
}

// NewMockProducer creates a producer that yields items when evaluated.
func NewMockProducer(items ...any) *MockProducer {
	return &MockProducer{items: items}
}

// WithError configures the producer to fail instead of returning an
// Iterator.
func (m *MockProducer) WithError(err error) *MockProducer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Producer returns the pipe.Producer to use as a Pipe's head.
func (m *MockProducer) Producer() pipe.Producer {
	return func(_ context.Context) (pipe.Iterator, error) {
		m.mu.Lock()
		m.callCount++
		err := m.err
		items := m.items
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return pipe.NewSliceIterator(items), nil
	}
}

// CallCount returns how many times the producer function itself ran.
func (m *MockProducer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// WaitForCalls polls mock until it has been called at least n times or
// timeout elapses, returning whether the target was reached.
func WaitForCalls(mock *MockTransform, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mock.CallCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return mock.CallCount() >= n
}
