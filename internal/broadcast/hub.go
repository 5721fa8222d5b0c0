// Package broadcast provides a lossy, bounded, multi-consumer fan-out hub.
// Each subscriber owns a buffer; a publisher never blocks on a slow
// subscriber, and values that do not fit are dropped for that subscriber
// only.
package broadcast

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer size used when none is given.
const DefaultCapacity = 100

// Hub fans published values out to every live subscription. Subscribers only
// observe values published after they subscribed, in publish order.
type Hub[T any] struct {
	capacity int

	mu          sync.RWMutex
	subscribers map[*Subscription[T]]struct{}
	closed      bool

	dropped atomic.Uint64
}

// New creates a hub whose subscribers buffer up to capacity values.
func New[T any](capacity int) *Hub[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub[T]{
		capacity:    capacity,
		subscribers: make(map[*Subscription[T]]struct{}),
	}
}

// Publish delivers v to every subscriber with room in its buffer and returns
// the number of subscribers that received it. Publishing to a closed hub is
// a no-op.
func (h *Hub[T]) Publish(v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}

	delivered := 0
	for sub := range h.subscribers {
		select {
		case sub.ch <- v:
			delivered++
		default:
			// Subscriber is lagging; drop for this subscriber only.
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribe registers a new consumer. Subscribing to a closed hub returns a
// subscription whose Next reports io.EOF.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{hub: h, ch: make(chan T, h.capacity)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

// Len returns the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (h *Hub[T]) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription. Buffered values are still delivered before
// Next reports io.EOF.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
	h.subscribers = make(map[*Subscription[T]]struct{})
}

// Subscription is a single consumer of a Hub. It is safe for use by one
// consumer goroutine.
type Subscription[T any] struct {
	hub    *Hub[T]
	ch     chan T
	closed atomic.Bool
}

// Next blocks until the next value is available or ctx is cancelled. It
// returns io.EOF once the subscription or its hub is closed and the buffer
// is drained.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// C exposes the underlying channel for use in select statements. It is
// closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close detaches the subscription from its hub.
func (s *Subscription[T]) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed.CompareAndSwap(false, true) {
		delete(s.hub.subscribers, s)
		close(s.ch)
	}
	return nil
}
