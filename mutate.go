package pipe

import "context"

// Mutate adapts a typed conditional transformation into a TransformFunc:
// the transformer runs only when condition reports true, otherwise the item
// passes through unchanged. The transformer itself cannot fail — use Apply
// with inline conditional logic if the conditional branch needs to fail.
//
// Example:
//
//	discount := pipe.Mutate("premium_discount",
//	    func(_ context.Context, o Order) Order { o.Total *= 0.9; return o },
//	    func(_ context.Context, o Order) bool { return o.Tier == "premium" },
//	)
func Mutate[T any](name string, transformer func(context.Context, T) T, condition func(context.Context, T) bool) TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		v, ok := item.(T)
		if !ok {
			return nil, newTypeMismatch(name, v, item)
		}
		if condition(ctx, v) {
			return transformer(ctx, v), nil
		}
		return v, nil
	}
}
