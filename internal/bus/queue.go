package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"eventtrader/pkg/exception"
)

// Queue is a bounded multi-producer single-consumer event queue.
type Queue[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	done    chan struct{}
	once    sync.Once
	closed  bool
	dropped atomic.Uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity), done: make(chan struct{})}
}

// TryPublish enqueues an event without blocking.
func (q *Queue[T]) TryPublish(e T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		q.dropped.Add(1)
		return exception.ErrQueueFull
	}
}

// Publish enqueues an event, waiting for room until ctx is done.
func (q *Queue[T]) Publish(ctx context.Context, e T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return exception.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side for select-based consumers.
func (q *Queue[T]) Events() <-chan T {
	return q.ch
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped reports how many TryPublish calls found the queue full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops the queue from accepting new events. Buffered events remain
// readable until drained.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
