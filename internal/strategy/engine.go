package strategy

import (
	"context"
	"fmt"
	"time"

	"eventtrader/internal/alias"
	"eventtrader/internal/calendar"
	"eventtrader/internal/hedge"
	"eventtrader/internal/journal"
	"eventtrader/internal/notify"
	"eventtrader/internal/obs"
	"eventtrader/internal/og"
	"eventtrader/internal/risk"
	"eventtrader/internal/route"
	"eventtrader/internal/scheduler"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type Config struct {
	Session    string
	Mode       Mode
	AckTimeout time.Duration
	Now        func() time.Time
}

// Deps are the collaborators an engine talks to. Only Sender is required.
type Deps struct {
	Sender   og.Sender
	Binder   route.Binder
	Notifier notify.Notifier
	Journal  Journal
	Metrics  *obs.Metrics
	Risk     *risk.Engine
}

// Engine owns every piece of session state. All methods must be called from
// the session goroutine.
type Engine struct {
	cfg      Config
	book     *alias.Book
	ledger   *og.Ledger
	hedger   *hedge.Hedger
	risk     *risk.Engine
	sched    *scheduler.Scheduler
	routes   *route.Tracker
	notifier notify.Notifier
	journal  Journal
	metrics  *obs.Metrics

	plan        calendar.Plan
	started     bool
	submittedAt map[string]time.Time
	done        chan struct{}
}

// NewEngine wires an engine onto sched. The scheduler must dispatch to HandleAction.
func NewEngine(cfg Config, deps Deps, sched *scheduler.Scheduler) (*Engine, error) {
	if deps.Sender == nil || sched == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "engine needs a sender and a scheduler")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCombined
	}
	if !cfg.Mode.Valid() {
		return nil, errors.Wrapf(exception.ErrConfiguration, "mode %q must be combined, entry-only or hedge-only", cfg.Mode)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Binder == nil {
		deps.Binder = route.NewMemory()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewEngine(risk.Config{})
	}

	e := &Engine{
		cfg:         cfg,
		book:        alias.NewBook(),
		risk:        deps.Risk,
		sched:       sched,
		routes:      route.NewTracker(deps.Binder),
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		submittedAt: make(map[string]time.Time),
		done:        make(chan struct{}),
	}
	e.notifier = auditNotifier{next: deps.Notifier, journal: deps.Journal, session: cfg.Session}
	e.ledger = og.NewLedger(og.LedgerConfig{
		Session:    cfg.Session,
		AckTimeout: cfg.AckTimeout,
		Now:        cfg.Now,
	}, deps.Sender, e.book, sched)
	e.hedger = hedge.New(hedge.Config{Session: cfg.Session, Now: cfg.Now}, e.book, e, sched, e.notifier)
	return e, nil
}

func (e *Engine) Book() *alias.Book {
	return e.book
}

func (e *Engine) Ledger() *og.Ledger {
	return e.ledger
}

func (e *Engine) Hedger() *hedge.Hedger {
	return e.hedger
}

// Done is closed once the session reached its end of day.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// SetRisk swaps the risk limits for subsequent intents.
func (e *Engine) SetRisk(r *risk.Engine) {
	if r != nil {
		e.risk = r
	}
}

// StartSession builds the alias states of plan and schedules their timelines.
// Nothing is scheduled or bound when any alias fails validation.
func (e *Engine) StartSession(ctx context.Context, plan calendar.Plan) error {
	if e.started {
		return errors.Wrapf(exception.ErrSessionRunning, "session: %s", e.cfg.Session)
	}
	if len(plan.Aliases) == 0 {
		return errors.Wrap(exception.ErrConfiguration, "session has no aliases")
	}
	probe := alias.NewBook()
	for _, cfg := range plan.Aliases {
		if _, err := probe.Add(cfg); err != nil {
			return err
		}
	}
	for _, cfg := range plan.Aliases {
		if _, err := e.book.Add(cfg); err != nil {
			return err
		}
	}
	e.plan = plan
	e.started = true

	for _, st := range e.book.All() {
		cfg := st.Config()
		if cfg.ToListen {
			if err := e.bindRoutes(ctx, cfg); err != nil {
				_ = e.routes.UnbindAll(ctx)
				return err
			}
		}
		if err := e.scheduleAlias(st); err != nil {
			return err
		}
	}
	if !plan.SessionEnd.IsZero() {
		e.sched.Schedule(plan.SessionEnd, PrioritySessionEnd, ActionSessionEnd, nil)
	}

	logs.Infof("session started, id: %s, mode: %s, aliases: %d, announcement: %s, end: %s",
		e.cfg.Session, e.cfg.Mode, e.book.Len(), formatTime(plan.Announcement), formatTime(plan.SessionEnd))
	return nil
}

func (e *Engine) bindRoutes(ctx context.Context, cfg alias.Config) error {
	keys := cfg.Bindings
	if len(keys) == 0 {
		keys = []string{cfg.SymbolAlias}
	}
	for _, key := range keys {
		if err := e.routes.Bind(ctx, cfg.Exchange, key); err != nil {
			return errors.Wrapf(err, "alias: %s", cfg.SymbolAlias)
		}
	}
	return nil
}

func (e *Engine) scheduleAlias(st *alias.State) error {
	cfg := st.Config()
	if cfg.Action == schema.AliasActionEnter && e.cfg.Mode.enters() {
		e.sched.Schedule(cfg.EntryStart, PriorityEntry, ActionEnter, cfg.SymbolAlias)
		e.sched.Schedule(cfg.EntryStart.Add(cfg.EntryPeriod), PriorityEntry, ActionEndEntry, cfg.SymbolAlias)
	}
	if cfg.Action == schema.AliasActionHedge && e.cfg.Mode.hedges() && !cfg.HedgeStart.IsZero() {
		if _, err := e.hedger.Plan(cfg.SymbolAlias, cfg.HedgeStart); err != nil {
			return err
		}
	}
	return nil
}

// HandleAction runs one due scheduled action.
func (e *Engine) HandleAction(ctx context.Context, ev scheduler.Event) error {
	return e.guard("action", string(ev.Action), "", fmt.Sprint(ev.Args), func() error {
		if hedge.Handles(ev.Action) {
			return e.hedger.Handle(ctx, ev)
		}
		switch ev.Action {
		case ActionEnter:
			st, err := e.alias(ev.Args)
			if err != nil {
				return err
			}
			return e.startEntry(ctx, st)
		case ActionEndEntry:
			st, err := e.alias(ev.Args)
			if err != nil {
				return err
			}
			e.endEntry(ctx, st)
			return nil
		case og.ActionAckTimeout:
			id, _ := ev.Args.(string)
			e.checkAck(ctx, id)
			return nil
		case ActionSessionEnd:
			e.endOfDay(ctx)
			return nil
		default:
			return errors.Wrapf(exception.ErrUnknownAction, "action: %s", ev.Action)
		}
	})
}

// OnMarketUpdate refreshes alias pricing and works the entry target.
func (e *Engine) OnMarketUpdate(ctx context.Context, u schema.MarketUpdate) error {
	return e.guard("market", string(u.Feed), "", u.SymbolAlias, func() error {
		if u.Feed == schema.FeedEndOfDay {
			e.endOfDay(ctx)
			return nil
		}
		st, ok := e.book.Get(u.SymbolAlias)
		if !ok {
			return errors.Wrapf(exception.ErrUnknownAlias, "market update, alias: %s", u.SymbolAlias)
		}
		st.ApplyMarket(u)
		if !st.CanEnter() {
			return nil
		}
		now := e.cfg.Now()
		st.UpdateEntrySizing(now)
		if err := e.tryEnter(ctx, st, now); err != nil {
			return err
		}
		e.repriceEntries(ctx, st)
		return nil
	})
}

// OnOrderEvent applies one lifecycle event to the ledger.
func (e *Engine) OnOrderEvent(ctx context.Context, ev schema.OrderEvent) (tr og.Transition, err error) {
	err = e.guard("order", ev.Kind.String(), ev.InternalID, ev.SymbolAlias, func() error {
		var applyErr error
		tr, applyErr = e.ledger.Apply(ev)
		if tr.Record != nil {
			e.metrics.ObserveTransition(ev.Kind, tr.Changed)
		}
		if tr.Removed {
			e.finish(tr.Record, journal.EntryOrder)
		}
		if exception.Is(applyErr, exception.ErrPositionLimit) {
			e.notifier.Notify(ctx, notify.Alert{
				Level:       notify.LevelCritical,
				Title:       "position limit breached",
				Message:     applyErr.Error(),
				SymbolAlias: ev.SymbolAlias,
				At:          e.cfg.Now(),
			})
		}
		return applyErr
	})
	return tr, err
}

// OnTrigger handles manual and calendar triggers. An empty alias applies to
// every alias the trigger fits.
func (e *Engine) OnTrigger(ctx context.Context, t schema.Trigger) error {
	return e.guard("trigger", string(t.Kind), "", t.SymbolAlias, func() error {
		switch t.Kind {
		case schema.TriggerEnter:
			if !e.cfg.Mode.enters() {
				return errors.Wrapf(exception.ErrArgumentUnsupported, "enter trigger in %s mode", e.cfg.Mode)
			}
			targets, err := e.targets(t.SymbolAlias, func(st *alias.State) bool {
				return st.Config().Action == schema.AliasActionEnter
			})
			if err != nil {
				return err
			}
			now := e.cfg.Now()
			for _, st := range targets {
				if err := e.startEntry(ctx, st); err != nil {
					return err
				}
				e.sched.Schedule(now.Add(st.Config().EntryPeriod), PriorityEntry, ActionEndEntry, st.SymbolAlias())
			}
			return nil
		case schema.TriggerHedge:
			if !e.cfg.Mode.hedges() {
				return errors.Wrapf(exception.ErrArgumentUnsupported, "hedge trigger in %s mode", e.cfg.Mode)
			}
			targets, err := e.targets(t.SymbolAlias, func(st *alias.State) bool {
				return st.NetPosition != 0
			})
			if err != nil {
				return err
			}
			for _, st := range targets {
				if _, err := e.hedger.Plan(st.SymbolAlias(), e.cfg.Now()); err != nil {
					return err
				}
			}
			return nil
		case schema.TriggerEndOfDay:
			e.endOfDay(ctx)
			return nil
		default:
			return errors.Wrapf(exception.ErrInvalidArgument, "trigger kind: %q", t.Kind)
		}
	})
}

// Submit risk-checks an order and hands it to the ledger.
func (e *Engine) Submit(ctx context.Context, o og.NewOrder) (string, error) {
	st, ok := e.book.Get(o.SymbolAlias)
	if !ok {
		return "", errors.Wrapf(exception.ErrUnknownAlias, "submit, alias: %s", o.SymbolAlias)
	}
	cfg := st.Config()
	now := e.cfg.Now()

	begin := time.Now()
	decision := e.risk.Evaluate(risk.Intent{
		SymbolAlias: o.SymbolAlias,
		Side:        o.Side,
		PriceType:   o.PriceType,
		Price:       o.Price,
		Qty:         o.Qty,
		Purpose:     o.Purpose,
	}, risk.StateView{
		Position:               st.NetPosition,
		WorkingSameSide:        e.ledger.WorkingQty(o.SymbolAlias, o.Side),
		OrdersAtPrice:          e.ledger.CountAtPrice(o.SymbolAlias, o.Side, o.Price),
		MaxPosition:            cfg.MaxPosition,
		MaxOrdersPerPriceLevel: cfg.MaxOrdersPerPriceLevel,
		ReferencePrice:         st.LastPrice,
		Now:                    now,
	})
	e.metrics.ObserveRiskEval(time.Since(begin))
	if !decision.Allowed() {
		e.metrics.IncRiskReason(decision.Reason)
		return "", errors.Wrapf(exception.ErrRiskRejected, "alias: %s, purpose: %s, side: %s, qty: %d, reason: %s",
			o.SymbolAlias, o.Purpose, o.Side, o.Qty, decision.Reason)
	}
	o.Qty = decision.Qty

	id, err := e.ledger.SubmitOrder(ctx, o)
	if id != "" {
		e.submittedAt[id] = now
	}
	if err != nil {
		return id, err
	}
	e.metrics.IncOrderSubmitted()
	return id, nil
}

// CancelWorking requests cancellation of every working order of an alias and
// purpose. It returns the leaves quantity whose cancel was sent.
func (e *Engine) CancelWorking(ctx context.Context, symbolAlias string, purpose schema.Purpose) int64 {
	var total int64
	for _, r := range e.ledger.Working(symbolAlias, purpose) {
		if err := e.ledger.SubmitCancel(ctx, r.InternalID); err != nil {
			logs.Warnf("cancel working order, id: %s, alias: %s, purpose: %s, state: %s, err: %+v",
				r.InternalID, symbolAlias, purpose, r.State, err)
			continue
		}
		total += r.Leaves()
	}
	return total
}

// Close unwinds what the session set up outside the scheduler.
func (e *Engine) Close(ctx context.Context) error {
	for _, st := range e.book.All() {
		if e.hedger.InFlight(st.SymbolAlias()) {
			e.hedger.Cancel(st.SymbolAlias())
			if st.NetPosition != 0 {
				e.notifier.Notify(ctx, notify.Alert{
					Level:       notify.LevelWarning,
					Title:       "session closed during hedge",
					Message:     fmt.Sprintf("net position %d left open", st.NetPosition),
					SymbolAlias: st.SymbolAlias(),
					At:          e.cfg.Now(),
				})
			}
		}
	}
	return e.routes.UnbindAll(ctx)
}

func (e *Engine) startEntry(ctx context.Context, st *alias.State) error {
	now := e.cfg.Now()
	st.StartEntry(now)
	logs.Infof("entry started, alias: %s, side: %s, target: %d", st.SymbolAlias(), st.Config().SideToEnter, st.ContractSizeToEnter)
	if !st.CanEnter() {
		return nil
	}
	st.UpdateEntrySizing(now)
	return e.tryEnter(ctx, st, now)
}

func (e *Engine) endEntry(ctx context.Context, st *alias.State) {
	st.StopEntry()
	cancelled := e.CancelWorking(ctx, st.SymbolAlias(), schema.PurposeEntry)
	logs.Infof("entry ended, alias: %s, filled: %d, net: %d, cancel working: %d", st.SymbolAlias(), st.FilledToEnter, st.NetPosition, cancelled)
}

// tryEnter sends at most one paced entry order at the passive touch.
func (e *Engine) tryEnter(ctx context.Context, st *alias.State, now time.Time) error {
	remaining := st.PositionRemainingToEnter()
	if remaining <= 0 {
		return nil
	}
	cfg := st.Config()
	if !st.LastOrderSentAt.IsZero() && now.Sub(st.LastOrderSentAt) < cfg.EntryOrderInterval {
		return nil
	}
	price, ok := st.PassivePrice(cfg.SideToEnter)
	if !ok {
		return nil
	}

	id, err := e.Submit(ctx, og.NewOrder{
		SymbolAlias: cfg.SymbolAlias,
		Symbol:      cfg.Symbol,
		Exchange:    cfg.Exchange,
		Side:        cfg.SideToEnter,
		PriceType:   schema.PriceTypeLimit,
		Price:       price,
		Qty:         min(remaining, cfg.MaxOrderSize),
		Purpose:     schema.PurposeEntry,
	})
	if id != "" {
		st.LastOrderSentAt = now
	}
	if err != nil {
		if exception.Is(err, exception.ErrRiskRejected) {
			logs.Debugf("entry skipped, alias: %s, err: %+v", cfg.SymbolAlias, err)
			return nil
		}
		return err
	}
	return nil
}

// repriceEntries moves resting entry orders to the current touch.
func (e *Engine) repriceEntries(ctx context.Context, st *alias.State) {
	side := st.Config().SideToEnter
	touch, ok := st.PassivePrice(side)
	if !ok {
		return
	}
	for _, r := range e.ledger.Working(st.SymbolAlias(), schema.PurposeEntry) {
		if r.PriceType != schema.PriceTypeLimit || r.Price.Equal(touch) || !r.Amend.Resolved() {
			continue
		}
		if r.State != og.StateOpen && r.State != og.StatePartiallyFilled {
			continue
		}
		if err := e.ledger.SubmitModify(ctx, r.InternalID, touch, r.Qty); err != nil {
			logs.Warnf("reprice entry, id: %s, alias: %s, price: %s, err: %+v", r.InternalID, r.SymbolAlias, touch, err)
		}
	}
}

func (e *Engine) checkAck(ctx context.Context, id string) {
	r, waiting := e.ledger.CheckAck(id)
	if !waiting {
		return
	}
	logs.Warnf("order not acknowledged, id: %s, alias: %s, sent: %s", id, r.SymbolAlias, formatTime(e.submittedAt[id]))
	e.notifier.Notify(ctx, notify.Alert{
		Level:       notify.LevelWarning,
		Title:       "order acknowledgement timeout",
		Message:     fmt.Sprintf("order %s still waiting for gateway acknowledgement", id),
		SymbolAlias: r.SymbolAlias,
		At:          e.cfg.Now(),
	})
}

// endOfDay stops entries, cancels working entry orders and purges retained
// rejections. Hedge sequences keep running until the session stops.
func (e *Engine) endOfDay(ctx context.Context) {
	select {
	case <-e.done:
		return
	default:
	}

	for _, st := range e.book.All() {
		if st.EntryFlag {
			e.endEntry(ctx, st)
		}
	}
	e.sched.Cancel(func(ev scheduler.Event) bool {
		return ev.Action == ActionEnter || ev.Action == ActionEndEntry
	})
	for _, r := range e.ledger.Records() {
		if r.State == og.StateRejected {
			if dropped, ok := e.ledger.Drop(r.InternalID); ok {
				e.finish(dropped, journal.EntryDropped)
			}
		}
	}
	logs.Infof("end of day, session: %s, live orders: %d", e.cfg.Session, e.ledger.Len())
	close(e.done)
}

// finish journals a record leaving the ledger and drops its bookkeeping.
func (e *Engine) finish(r *og.Record, kind journal.EntryKind) {
	now := e.cfg.Now()
	if at, ok := e.submittedAt[r.InternalID]; ok {
		e.metrics.ObserveOrderFlow(now.Sub(at))
		delete(e.submittedAt, r.InternalID)
	}
	if e.journal == nil {
		return
	}
	if err := e.journal.TryAppend(journal.FromRecord(e.cfg.Session, kind, r, now)); err != nil {
		logs.Warnf("journal order, id: %s, alias: %s, err: %+v", r.InternalID, r.SymbolAlias, err)
	}
}

func (e *Engine) alias(args any) (*alias.State, error) {
	name, _ := args.(string)
	st, ok := e.book.Get(name)
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownAlias, "alias: %v", args)
	}
	return st, nil
}

func (e *Engine) targets(name string, fits func(*alias.State) bool) ([]*alias.State, error) {
	if name != "" {
		st, ok := e.book.Get(name)
		if !ok {
			return nil, errors.Wrapf(exception.ErrUnknownAlias, "alias: %s", name)
		}
		return []*alias.State{st}, nil
	}
	var out []*alias.State
	for _, st := range e.book.All() {
		if fits(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// guard contains errors and panics at the engine boundary.
func (e *Engine) guard(source, kind, id, symbolAlias string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrInternal, "panic: %v", r)
		}
		if err != nil {
			e.metrics.IncError(err)
			logs.Errorf("%s failed, id: %s, alias: %s, kind: %s, class: %s, err: %+v",
				source, id, symbolAlias, kind, exception.Classify(err), err)
		}
	}()
	return fn()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
