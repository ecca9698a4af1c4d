// Package scheduler releases timed actions to a single consumer in wall-clock order.
package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// Action names what a scheduled event does; the handler interprets it.
type Action string

// Event is one scheduled action. Lower Priority fires first among equal At.
type Event struct {
	At       time.Time
	Priority int
	Action   Action
	Args     any

	seq uint64
}

// Seq is the insertion order of the event.
func (e Event) Seq() uint64 {
	return e.seq
}

// Handler runs a due event on the consumer goroutine.
type Handler func(ctx context.Context, ev Event) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithErrorHandler receives every failed action. Failures never stop the loop.
func WithErrorHandler(fn func(ev Event, err error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// Scheduler is a time ordered priority queue. Schedule and Cancel are safe
// from any goroutine; dispatch happens only inside Run or Serve.
type Scheduler struct {
	mu      sync.Mutex
	queue   eventHeap
	seq     uint64
	wake    chan struct{}
	now     func() time.Time
	onError func(ev Event, err error)
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues an action. A past At fires on the next tick.
func (s *Scheduler) Schedule(at time.Time, priority int, action Action, args any) Event {
	s.mu.Lock()
	s.seq++
	ev := Event{At: at, Priority: priority, Action: action, Args: args, seq: s.seq}
	heap.Push(&s.queue, ev)
	s.mu.Unlock()
	s.notify()
	return ev
}

// Cancel removes every pending event matching pred and returns how many were removed.
func (s *Scheduler) Cancel(pred func(Event) bool) int {
	s.mu.Lock()
	kept := s.queue[:0]
	removed := 0
	for _, ev := range s.queue {
		if pred(ev) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.queue = kept
	heap.Init(&s.queue)
	s.mu.Unlock()
	if removed > 0 {
		s.notify()
	}
	return removed
}

// CancelAll drops every pending event.
func (s *Scheduler) CancelAll() int {
	return s.Cancel(func(Event) bool { return true })
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Pending returns a copy of the queue in dispatch order.
func (s *Scheduler) Pending() []Event {
	s.mu.Lock()
	out := make([]Event, len(s.queue))
	copy(out, s.queue)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Run dispatches due events until ctx is done.
func (s *Scheduler) Run(ctx context.Context, handler Handler) error {
	return Serve[struct{}](ctx, s, handler, nil, nil)
}

// Serve runs the dispatch loop while also draining inbox on the same
// goroutine, so consume and handler never run concurrently. A closed inbox
// ends the loop.
func Serve[T any](ctx context.Context, s *Scheduler, handler Handler, inbox <-chan T, consume func(T)) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ev, wait, ok := s.next()
		if ok && wait <= 0 {
			s.dispatch(ctx, handler, ev)
			continue
		}

		var timerC <-chan time.Time
		if ok {
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timerC:
		case item, open := <-inbox:
			if !open {
				return nil
			}
			if consume != nil {
				consume(item)
			}
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next pops the head if due, otherwise reports how long until it is.
func (s *Scheduler) next() (Event, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, 0, false
	}
	head := s.queue[0]
	wait := head.At.Sub(s.now())
	if wait > 0 {
		return head, wait, true
	}
	heap.Pop(&s.queue)
	return head, 0, true
}

func (s *Scheduler) dispatch(ctx context.Context, handler Handler, ev Event) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
			}
		}()
		return handler(ctx, ev)
	}()
	if err == nil {
		return
	}
	// the cause stays in the chain so callers can still match it
	err = errors.Join(errors.Wrapf(exception.ErrSchedulerActionFailure,
		"action: %s, at: %s", ev.Action, ev.At.Format(time.RFC3339)), err)
	if s.onError != nil {
		s.onError(ev, err)
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func less(a, b Event) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

type eventHeap []Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}
