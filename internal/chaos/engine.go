// Package chaos perturbs an event stream with drops, duplicates, reordering
// and delays so consumers can be exercised against an unreliable gateway.
package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	MaxDelay      time.Duration
}

// Enabled reports whether any rule would alter the stream.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

// Engine applies chaos rules to events of type T.
type Engine[T any] struct {
	cfg     Config
	rng     *rand.Rand
	pending []T
	delay   func(T, time.Duration) T
}

// NewEngine creates a chaos engine with validation. delay shifts an event's
// timestamps and may be nil when MaxDelay is unused.
func NewEngine[T any](cfg Config, delay func(T, time.Duration) T) (*Engine[T], error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine[T]{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		delay: delay,
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.New("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.New("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.New("maxDelay must be >= 0")
	}
	return nil
}

// Process applies chaos to a single event and returns any output events.
func (e *Engine[T]) Process(ev T) []T {
	if e == nil {
		return []T{ev}
	}
	if e.shouldDrop() {
		return nil
	}
	ev = e.applyDelay(ev)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.Intn(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Flush returns any buffered events after processing completes.
func (e *Engine[T]) Flush() []T {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]T, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.Intn(len(e.pending))
		ev := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(ev)...)
	}
	return out
}

func (e *Engine[T]) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine[T]) applyDuplicate(ev T) []T {
	out := []T{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, ev)
	}
	return out
}

func (e *Engine[T]) applyDelay(ev T) T {
	if e.cfg.MaxDelay <= 0 || e.delay == nil {
		return ev
	}
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	delay := time.Duration(e.rng.Int63n(maxDelay + 1))
	if delay == 0 {
		return ev
	}
	return e.delay(ev, delay)
}
