package pipe

import (
	"context"
	"errors"
	"testing"
)

func TestSliceIterator(t *testing.T) {
	it := NewSliceIterator([]any{"a", "b", "c"})
	defer it.Close()

	var got []any
	for {
		v, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
}

func TestChannelIteratorYieldsAndExhausts(t *testing.T) {
	it := NewChannelIterator(context.Background(), func(_ context.Context, yield func(any) bool) error {
		for i := 0; i < 3; i++ {
			if !yield(i) {
				return nil
			}
		}
		return nil
	})
	defer it.Close()

	count := 0
	for {
		_, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 items, got %d", count)
	}
}

func TestChannelIteratorPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	it := NewChannelIterator(context.Background(), func(_ context.Context, yield func(any) bool) error {
		yield(1)
		return boom
	})
	defer it.Close()

	_, ok, _ := it.Next(context.Background())
	if !ok {
		t.Fatal("expected the first item before the error")
	}
	_, ok, err := it.Next(context.Background())
	if ok {
		t.Fatal("expected exhaustion on the error step")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestChannelIteratorCloseCancelsProducer(t *testing.T) {
	started := make(chan struct{})
	it := NewChannelIterator(context.Background(), func(ctx context.Context, yield func(any) bool) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	if err := it.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	// closing twice must be safe
	if err := it.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}
