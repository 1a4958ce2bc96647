package pipe

import "context"

// Effect adapts a typed side-effecting function into a TransformFunc that
// passes its item through unchanged. Use Effect for logging, metrics, audit
// trails, or validation that must not alter the item itself. A returned
// error still aborts the item, exactly as Apply's does.
//
// Example:
//
//	audit := pipe.Effect("audit", func(_ context.Context, order Order) error {
//	    return auditLog.Write(order)
//	})
func Effect[T any](name string, fn func(context.Context, T) error) TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		v, ok := item.(T)
		if !ok {
			return nil, newTypeMismatch(name, v, item)
		}
		if err := fn(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
