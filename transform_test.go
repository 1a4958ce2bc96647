package pipe

import (
	"context"
	"strings"
	"testing"
)

func TestTransform(t *testing.T) {
	t.Run("applies the function", func(t *testing.T) {
		upper := Transform("uppercase", func(_ context.Context, s string) string {
			return strings.ToUpper(s)
		})

		result, err := upper(context.Background(), "hello", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "HELLO" {
			t.Errorf("expected %q, got %q", "HELLO", result)
		}
	})

	t.Run("reports a type mismatch", func(t *testing.T) {
		upper := Transform("uppercase", func(_ context.Context, s string) string {
			return strings.ToUpper(s)
		})

		_, err := upper(context.Background(), 42, nil)
		if err == nil {
			t.Fatal("expected a type mismatch error")
		}
	})
}
