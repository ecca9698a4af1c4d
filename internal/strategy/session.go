package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"eventtrader/internal/bus"
	"eventtrader/internal/calendar"
	"eventtrader/internal/risk"
	"eventtrader/internal/scheduler"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const DefaultQueueCapacity = 4096

type SessionConfig struct {
	ID            string
	Mode          Mode
	QueueCapacity int
	AckTimeout    time.Duration
	Now           func() time.Time
}

type envelope struct {
	header  schema.EventHeader
	market  schema.MarketUpdate
	order   schema.OrderEvent
	trigger schema.Trigger
	control func(*Engine)
}

// Session is one trading day. It serializes every inbound event and every
// scheduled action onto a single goroutine that owns the engine.
type Session struct {
	cfg  SessionConfig
	deps Deps

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	engine  *Engine
	sched   *scheduler.Scheduler

	queue atomic.Pointer[bus.Queue[envelope]]
	seq   atomic.Uint64
}

func NewSession(cfg SessionConfig, deps Deps) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{cfg: cfg, deps: deps}
}

func (s *Session) ID() string {
	return s.cfg.ID
}

// Start builds the session state from plan and launches the loop. A
// configuration error leaves the session stopped.
func (s *Session) Start(ctx context.Context, plan calendar.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.Wrapf(exception.ErrSessionRunning, "session: %s", s.cfg.ID)
	}

	sched := scheduler.New(
		scheduler.WithClock(s.cfg.Now),
		scheduler.WithErrorHandler(func(ev scheduler.Event, err error) {
			s.deps.Metrics.IncActionFailure()
			logs.Warnf("scheduled action failed, session: %s, action: %s, args: %v, err: %+v", s.cfg.ID, ev.Action, ev.Args, err)
		}),
	)
	engine, err := NewEngine(Config{
		Session:    s.cfg.ID,
		Mode:       s.cfg.Mode,
		AckTimeout: s.cfg.AckTimeout,
		Now:        s.cfg.Now,
	}, s.deps, sched)
	if err != nil {
		return err
	}
	if err := engine.StartSession(ctx, plan); err != nil {
		sched.CancelAll()
		return err
	}

	queue := bus.NewQueue[envelope](s.cfg.QueueCapacity)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.engine = engine
	s.sched = sched
	s.cancel = cancel
	s.queue.Store(queue)
	s.running = true

	s.wg.Go(func() {
		err := scheduler.Serve(loopCtx, sched, engine.HandleAction, queue.Events(), func(env envelope) {
			s.consume(loopCtx, engine, env)
		})
		if err != nil && !exception.Is(err, context.Canceled) {
			logs.Errorf("session loop stopped, session: %s, err: %+v", s.cfg.ID, err)
		}
	})
	return nil
}

// Stop ends the loop and leaves no scheduled action behind.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return errors.Wrapf(exception.ErrSessionNotRunning, "session: %s", s.cfg.ID)
	}
	s.running = false

	queue := s.queue.Swap(nil)
	s.cancel()
	s.wg.Wait()
	queue.Close()

	cancelled := s.sched.CancelAll()
	err := s.engine.Close(ctx)
	logs.Infof("session stopped, id: %s, cancelled actions: %d, live orders: %d, dropped events: %d",
		s.cfg.ID, cancelled, s.engine.Ledger().Len(), queue.Dropped())
	return err
}

// EndOfDay is closed once the session passed its end of day. It is nil
// before Start.
func (s *Session) EndOfDay() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Done()
}

// Pending lists the scheduled actions not yet due.
func (s *Session) Pending() []scheduler.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	return s.sched.Pending()
}

// PublishMarket drops the update when the queue is full; a newer quote follows.
func (s *Session) PublishMarket(u schema.MarketUpdate) error {
	queue := s.queue.Load()
	if queue == nil {
		return errors.Wrapf(exception.ErrSessionNotRunning, "session: %s", s.cfg.ID)
	}
	err := queue.TryPublish(envelope{header: s.header(schema.EventMarketData, u.At), market: u})
	switch {
	case exception.Is(err, exception.ErrQueueFull):
		s.deps.Metrics.IncQueueDrop()
	case exception.Is(err, exception.ErrQueueClosed):
		s.deps.Metrics.IncQueueClosed()
	}
	return err
}

// PublishOrderEvent blocks until the event is queued; lifecycle events are never dropped.
func (s *Session) PublishOrderEvent(ctx context.Context, ev schema.OrderEvent) error {
	return s.publish(ctx, envelope{header: s.header(schema.EventOrderEvent, ev.At), order: ev})
}

func (s *Session) PublishTrigger(ctx context.Context, t schema.Trigger) error {
	return s.publish(ctx, envelope{header: s.header(schema.EventTrigger, t.At), trigger: t})
}

// UpdateRisk swaps the risk limits on the session goroutine.
func (s *Session) UpdateRisk(ctx context.Context, cfg risk.Config) error {
	r := risk.NewEngine(cfg)
	return s.Inspect(ctx, func(e *Engine) {
		e.SetRisk(r)
		logs.Infof("risk limits updated, session: %s, version: %d", s.cfg.ID, cfg.Version)
	})
}

// Inspect runs fn on the session goroutine and waits for it.
func (s *Session) Inspect(ctx context.Context, fn func(*Engine)) error {
	done := make(chan struct{})
	err := s.publish(ctx, envelope{
		header: s.header(schema.EventControl, time.Time{}),
		control: func(e *Engine) {
			defer close(done)
			fn(e)
		},
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) publish(ctx context.Context, env envelope) error {
	queue := s.queue.Load()
	if queue == nil {
		return errors.Wrapf(exception.ErrSessionNotRunning, "session: %s", s.cfg.ID)
	}
	if err := queue.Publish(ctx, env); err != nil {
		if exception.Is(err, exception.ErrQueueClosed) {
			s.deps.Metrics.IncQueueClosed()
		}
		return err
	}
	return nil
}

func (s *Session) header(t schema.EventType, at time.Time) schema.EventHeader {
	return schema.NewHeader(t, s.seq.Add(1), at)
}

func (s *Session) consume(ctx context.Context, engine *Engine, env envelope) {
	s.deps.Metrics.ObserveEvent(env.header)
	begin := time.Now()
	switch env.header.Type {
	case schema.EventMarketData:
		_ = engine.OnMarketUpdate(ctx, env.market)
	case schema.EventOrderEvent:
		_, _ = engine.OnOrderEvent(ctx, env.order)
	case schema.EventTrigger:
		_ = engine.OnTrigger(ctx, env.trigger)
	case schema.EventControl:
		if env.control != nil {
			env.control(engine)
		}
	}
	s.deps.Metrics.ObserveDispatch(time.Since(begin))
}
