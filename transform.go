package pipe

import "context"

// Transform adapts a pure, typed transformation into a TransformFunc that a
// Pipe can hold as a non-head step. Transform is the simplest adapter — use
// it when the operation always succeeds and always produces a value of the
// same dynamic type it received.
//
// The returned TransformFunc type-asserts the incoming item to T; a
// mismatch surfaces as InvalidStepFunctionArgumentsError rather than a
// panic, since an admitted item failing to match what a step expects is an
// ordinary, expected outcome of running a dynamically typed graph.
//
// Example:
//
//	upper := pipe.Transform("uppercase", func(_ context.Context, s string) string {
//	    return strings.ToUpper(s)
//	})
func Transform[T any](name string, fn func(context.Context, T) T) TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		v, ok := item.(T)
		if !ok {
			return nil, newTypeMismatch(name, v, item)
		}
		return fn(ctx, v), nil
	}
}
