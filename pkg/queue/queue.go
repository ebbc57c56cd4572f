// Package queue implements the unbounded multi-producer, single-consumer queue
// that carries candidate models from trainers to the parameter server.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Receive when nothing arrived within the wait
	// bound. It is a liveness tick, not a failure.
	ErrTimeout = errors.New("queue receive timed out")
	// ErrClosed is returned by Send after Close, and by Receive once the queue
	// is closed and drained.
	ErrClosed = errors.New("queue closed")
)

// Sender is the producer side. Send never blocks.
type Sender[T any] interface {
	Send(v T) error
}

// Receiver is the consumer side.
type Receiver[T any] interface {
	Receive(ctx context.Context, timeout time.Duration) (T, error)
}

// Unbounded preserves Send order. Capacity is bounded only by memory.
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
	done   chan struct{}
}

var (
	_ Sender[[]byte]   = (*Unbounded[[]byte])(nil)
	_ Receiver[[]byte] = (*Unbounded[[]byte])(nil)
)

func NewUnbounded[T any]() *Unbounded[T] {
	return &Unbounded[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *Unbounded[T]) Send(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}

	return nil
}

// Receive waits at most timeout for the next item. A non-positive timeout waits
// until an item arrives, the queue closes or ctx is done.
func (q *Unbounded[T]) Receive(ctx context.Context, timeout time.Duration) (T, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		v, ok, closed := q.pop()
		if ok {
			return v, nil
		}
		if closed {
			return v, ErrClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-expired:
			return v, ErrTimeout
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Close stops accepting items. Items already queued can still be received.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *Unbounded[T]) pop() (v T, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.items = nil

		return v, false, q.closed
	}

	var zero T
	v = q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return v, true, q.closed
}
