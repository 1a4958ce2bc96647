package pipe

import "context"

// Apply adapts a typed, fallible transformation into a TransformFunc. Apply
// is the workhorse adapter — use it when the step's operation might fail
// due to validation, parsing, or an external call. On error, the item is
// dropped from the pipe and the error propagates out of the dispatcher.
//
// Example:
//
//	parse := pipe.Apply("parse_json", func(_ context.Context, raw string) (Data, error) {
//	    var data Data
//	    if err := json.Unmarshal([]byte(raw), &data); err != nil {
//	        return Data{}, fmt.Errorf("invalid JSON: %w", err)
//	    }
//	    return data, nil
//	})
func Apply[T any](name string, fn func(context.Context, T) (T, error)) TransformFunc {
	return func(ctx context.Context, item any, meta any) (any, error) {
		v, ok := item.(T)
		if !ok {
			return nil, newTypeMismatch(name, v, item)
		}
		result, err := fn(ctx, v)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}
