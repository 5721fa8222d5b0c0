package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestHub_OnlyObservesLaterValues(t *testing.T) {
	h := New[int](4)
	h.Publish(1)

	sub := h.Subscribe()
	defer sub.Close()

	h.Publish(2)
	h.Publish(3)

	ctx := context.Background()
	for _, want := range []int{2, 3} {
		got, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestHub_LossyForSlowSubscriber(t *testing.T) {
	h := New[int](2)
	slow := h.Subscribe()
	fast := h.Subscribe()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		h.Publish(i)
		if _, err := fast.Next(ctx); err != nil {
			t.Fatalf("fast Next: %v", err)
		}
	}
	if h.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", h.Dropped())
	}
	// the slow subscriber keeps the oldest values that fit
	for _, want := range []int{0, 1} {
		got, _ := slow.Next(ctx)
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestHub_CloseDrainsThenEOF(t *testing.T) {
	h := New[string](4)
	sub := h.Subscribe()
	h.Publish("a")
	h.Close()

	ctx := context.Background()
	if v, err := sub.Next(ctx); err != nil || v != "a" {
		t.Fatalf("expected buffered value, got %q %v", v, err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if n := h.Publish("b"); n != 0 {
		t.Fatalf("expected publish after close to deliver nothing")
	}
	late := h.Subscribe()
	if _, err := late.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for subscription on closed hub, got %v", err)
	}
	// closing a subscription after its hub is harmless
	_ = sub.Close()
	h.Close()
}

func TestHub_NextHonoursContext(t *testing.T) {
	h := New[int](1)
	sub := h.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHub_ConcurrentPublishSubscribe(t *testing.T) {
	h := New[int](1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := h.Subscribe()
			for j := 0; j < 10; j++ {
				h.Publish(j)
			}
			_ = sub.Close()
		}()
	}
	wg.Wait()
	if h.Len() != 0 {
		t.Fatalf("expected all subscriptions closed, %d remain", h.Len())
	}
}
