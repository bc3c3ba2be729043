// Package lossyfeed provides an in-process broadcast feed with bounded
// per-subscriber buffers. A publisher is never blocked or queued unboundedly
// by a slow subscriber: once a subscriber's buffer is full, the oldest
// buffered item is dropped, and the subscriber is told how many items it
// missed on its next receive. Shedding backlog onto the slow consumer rather
// than applying backpressure to the producer is the deliberate design here,
// since consumers are expected to recover by re-reading shared state rather
// than by replaying every notification.
package lossyfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ef-ds/deque"

	"github.com/onstrata/strata-go/module"
)

// ErrClosed is returned by Recv once the feed has been closed and all items
// buffered by the subscription have been delivered.
var ErrClosed = errors.New("lossy feed closed")

// GapError informs a subscriber that it fell behind: Skipped items were
// dropped from its buffer since the previous receive. The gap is reported
// before any of the remaining buffered items, in chronological position of
// the dropped items.
type GapError struct {
	Skipped uint64
}

func (e GapError) Error() string {
	return fmt.Sprintf("lossy feed skipped %d items", e.Skipped)
}

// Feed is a broadcast channel fanning every published item out to all
// subscriptions. All methods are concurrency-safe.
type Feed[T any] struct {
	mu       sync.Mutex
	capacity int
	subs     []*Subscription[T]
	closed   bool
}

// New creates a feed whose subscribers each buffer up to capacity items.
func New[T any](capacity int) *Feed[T] {
	if capacity <= 0 {
		panic("lossyfeed: capacity must be positive")
	}
	return &Feed[T]{capacity: capacity}
}

// Subscribe registers a new subscription receiving all items published from
// this point on. Subscribing to a closed feed yields a subscription that
// immediately reports ErrClosed.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscription[T]{
		capacity: f.capacity,
		wake:     module.NewNotifier(),
		closed:   f.closed,
	}
	if !f.closed {
		f.subs = append(f.subs, sub)
	}
	return sub
}

// Publish fans the item out to all subscriptions without ever blocking.
// Publishing on a closed feed is a no-op.
func (f *Feed[T]) Publish(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	for _, sub := range f.subs {
		sub.push(item)
	}
}

// Close permanently closes the feed. Subscribers drain their buffered items
// and then receive ErrClosed. Close is idempotent.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for _, sub := range f.subs {
		sub.close()
	}
	f.subs = nil
}

// Subscription is one consumer's view of the feed. A subscription must only
// be consumed by a single goroutine.
type Subscription[T any] struct {
	mu       sync.Mutex
	capacity int
	items    deque.Deque
	skipped  uint64
	closed   bool
	wake     module.Notifier
}

func (s *Subscription[T]) push(item T) {
	s.mu.Lock()
	if s.items.Len() >= s.capacity {
		s.items.PopFront()
		s.skipped++
	}
	s.items.PushBack(item)
	s.mu.Unlock()
	s.wake.Notify()
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake.Notify()
}

// Recv returns the next event on the subscription, blocking until one is
// available or the context is cancelled. The result is exactly one of:
//   - (item, nil): the next published item;
//   - (zero, GapError): the subscriber fell behind and missed
//     GapError.Skipped items at this position of the stream;
//   - (zero, ErrClosed): the feed was closed and the buffer is drained;
//   - (zero, ctx.Err()): the context ended while waiting.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.skipped > 0 {
			skipped := s.skipped
			s.skipped = 0
			s.mu.Unlock()
			return zero, GapError{Skipped: skipped}
		}
		if s.items.Len() > 0 {
			item, _ := s.items.PopFront()
			s.mu.Unlock()
			return item.(T), nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.wake.Channel():
		}
	}
}
