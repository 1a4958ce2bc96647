package pipe

import "context"

// Enrich adapts a typed, best-effort enhancement into a TransformFunc. If
// the enhancement fails, the original item passes through unchanged rather
// than aborting — enrichment is always optional by construction. Callers
// that need the enrichment to be mandatory should use Apply instead.
//
// Example:
//
//	addName := pipe.Enrich("add_customer_name", func(ctx context.Context, o Order) (Order, error) {
//	    customer, err := customers.Get(ctx, o.CustomerID)
//	    if err != nil {
//	        return o, err
//	    }
//	    o.CustomerName = customer.Name
//	    return o, nil
//	})
func Enrich[T any](name string, fn func(context.Context, T) (T, error)) TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		v, ok := item.(T)
		if !ok {
			return nil, newTypeMismatch(name, v, item)
		}
		enriched, err := fn(ctx, v)
		if err != nil {
			return v, nil
		}
		return enriched, nil
	}
}
