package feed

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/goccy/go-json"
	"github.com/yanun0323/errors"
)

// ReplayConfig controls frame playback.
type ReplayConfig struct {
	Path string
	// Speed scales gaps between frame times. Zero replays without pacing.
	Speed float64
	// MaxLineSize bounds one JSON line. Zero uses 1 MiB.
	MaxLineSize int
}

func (c ReplayConfig) Validate() error {
	if c.Path == "" {
		return errors.Wrap(exception.ErrConfiguration, "replay path is empty")
	}
	if c.Speed < 0 {
		return errors.Wrap(exception.ErrConfiguration, "replay speed must be >= 0")
	}
	return nil
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Replay feeds recorded frames to handlers in file order.
type Replay struct {
	cfg   ReplayConfig
	clock Clock
}

func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = 1 << 20
	}
	return &Replay{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (r *Replay) WithClock(clock Clock) *Replay {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Run dispatches every frame and returns how many were replayed.
func (r *Replay) Run(ctx context.Context, h Handlers) (int, error) {
	file, err := os.Open(r.cfg.Path)
	if err != nil {
		return 0, errors.Wrapf(err, "open replay %s", r.cfg.Path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), r.cfg.MaxLineSize)

	var (
		count int
		line  int
		prev  time.Time
	)
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return count, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			return count, errors.Wrapf(exception.ErrWebSocketProtocol, "%s:%d: %v", r.cfg.Path, line, err)
		}
		if err := r.pace(ctx, f.at(), &prev); err != nil {
			return count, err
		}
		if err := f.dispatch(h); err != nil {
			return count, errors.Wrapf(err, "%s:%d", r.cfg.Path, line)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "read replay %s", r.cfg.Path)
	}
	return count, nil
}

func (r *Replay) pace(ctx context.Context, at time.Time, prev *time.Time) error {
	if r.cfg.Speed <= 0 || at.IsZero() {
		return nil
	}
	if !prev.IsZero() {
		if delta := at.Sub(*prev); delta > 0 {
			if err := r.clock.Sleep(ctx, time.Duration(float64(delta)/r.cfg.Speed)); err != nil {
				return err
			}
		}
	}
	*prev = at
	return nil
}

// at is the event time carried by the frame body.
func (f Frame) at() time.Time {
	switch {
	case f.Market != nil:
		return f.Market.At
	case f.Order != nil:
		return f.Order.At
	case f.Trigger != nil:
		return f.Trigger.At
	default:
		return time.Time{}
	}
}

// Recorder appends frames as JSON lines for later replay.
type Recorder struct {
	mu  sync.Mutex
	w   *bufio.Writer
	c   io.Closer
	err error
}

func NewRecorder(path string) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open recording %s", path)
	}
	return &Recorder{w: bufio.NewWriter(file), c: file}, nil
}

// Record keeps the first write error and ignores frames after it.
func (r *Recorder) Record(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		r.err = err
		return
	}
	if _, err := r.w.Write(append(b, '\n')); err != nil {
		r.err = err
	}
}

// Tee wraps h so every dispatched frame is recorded first.
func (r *Recorder) Tee(h Handlers) Handlers {
	return Handlers{
		Market: func(u schema.MarketUpdate) {
			r.Record(Frame{Type: FrameMarket, Market: &u})
			if h.Market != nil {
				h.Market(u)
			}
		},
		Order: func(ev schema.OrderEvent) {
			r.Record(Frame{Type: FrameOrderEvent, Order: &ev})
			if h.Order != nil {
				h.Order(ev)
			}
		},
		Trigger: func(t schema.Trigger) {
			r.Record(Frame{Type: FrameTrigger, Trigger: &t})
			if h.Trigger != nil {
				h.Trigger(t)
			}
		},
	}
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.c.Close(); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}
