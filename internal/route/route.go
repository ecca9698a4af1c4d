// Package route controls which market data routes a session listens to.
package route

import (
	"context"
	"sort"
	"sync"

	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// Binder subscribes and unsubscribes a routing key on an exchange.
type Binder interface {
	Bind(ctx context.Context, exchange, key string) error
	Unbind(ctx context.Context, exchange, key string) error
}

// Binding is one exchange and routing key pair.
type Binding struct {
	Exchange string
	Key      string
}

// Memory records bindings without any transport. It backs paper sessions.
type Memory struct {
	mu    sync.Mutex
	bound map[Binding]struct{}
}

func NewMemory() *Memory {
	return &Memory{bound: make(map[Binding]struct{})}
}

func (m *Memory) Bind(_ context.Context, exchange, key string) error {
	if exchange == "" || key == "" {
		return errors.Wrapf(exception.ErrInvalidArgument, "bind exchange: %q, key: %q", exchange, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound[Binding{Exchange: exchange, Key: key}] = struct{}{}
	return nil
}

func (m *Memory) Unbind(_ context.Context, exchange, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bound, Binding{Exchange: exchange, Key: key})
	return nil
}

// Bound lists the current bindings sorted by exchange then key.
func (m *Memory) Bound() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Binding, 0, len(m.bound))
	for b := range m.bound {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Tracker remembers what a session bound so it can undo exactly that.
type Tracker struct {
	binder Binder
	bound  []Binding
}

func NewTracker(b Binder) *Tracker {
	return &Tracker{binder: b}
}

func (t *Tracker) Bind(ctx context.Context, exchange, key string) error {
	if err := t.binder.Bind(ctx, exchange, key); err != nil {
		return errors.Wrapf(err, "bind %s/%s", exchange, key)
	}
	t.bound = append(t.bound, Binding{Exchange: exchange, Key: key})
	return nil
}

// UnbindAll releases every binding made through t, newest first, and
// returns the first error.
func (t *Tracker) UnbindAll(ctx context.Context) error {
	var first error
	for i := len(t.bound) - 1; i >= 0; i-- {
		b := t.bound[i]
		if err := t.binder.Unbind(ctx, b.Exchange, b.Key); err != nil && first == nil {
			first = errors.Wrapf(err, "unbind %s/%s", b.Exchange, b.Key)
		}
	}
	t.bound = nil
	return first
}

func (t *Tracker) Len() int {
	return len(t.bound)
}
