// Package hedge runs the timed hedge sequence of an alias: passive attempts,
// a final marketable order, a health check and an operator escalation.
package hedge

import (
	"context"
	"strconv"
	"time"

	"eventtrader/internal/alias"
	"eventtrader/internal/notify"
	"eventtrader/internal/og"
	"eventtrader/internal/scheduler"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	ActionAttempt     scheduler.Action = "hedge.attempt"
	ActionFinal       scheduler.Action = "hedge.final"
	ActionHealthCheck scheduler.Action = "hedge.health_check"
	ActionEscalate    scheduler.Action = "hedge.escalate"

	// PriorityHedge runs hedge steps ahead of entry actions due at the same instant.
	PriorityHedge = 10

	HealthCheckDelay = 10 * time.Second
	EscalationDelay  = 60 * time.Second
)

// Step is the argument of every scheduled hedge action.
type Step struct {
	SymbolAlias string
	Attempt     int
	Of          int
}

// Submitter places risk-checked orders and cancels working ones.
type Submitter interface {
	Submit(ctx context.Context, o og.NewOrder) (string, error)
	CancelWorking(ctx context.Context, symbolAlias string, purpose schema.Purpose) int64
}

// Timer schedules and cancels hedge steps.
type Timer interface {
	Schedule(at time.Time, priority int, action scheduler.Action, args any) scheduler.Event
	Cancel(pred func(scheduler.Event) bool) int
}

type Config struct {
	Session string
	Now     func() time.Time
}

// Hedger owns the hedge timelines. It is driven from the session goroutine only.
type Hedger struct {
	cfg      Config
	book     *alias.Book
	sub      Submitter
	timer    Timer
	notifier notify.Notifier
	inFlight map[string]time.Time
}

func New(cfg Config, book *alias.Book, sub Submitter, timer Timer, notifier notify.Notifier) *Hedger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Hedger{
		cfg:      cfg,
		book:     book,
		sub:      sub,
		timer:    timer,
		notifier: notifier,
		inFlight: make(map[string]time.Time),
	}
}

// Handles reports whether action belongs to the hedge sequence.
func Handles(action scheduler.Action) bool {
	switch action {
	case ActionAttempt, ActionFinal, ActionHealthCheck, ActionEscalate:
		return true
	default:
		return false
	}
}

// Plan schedules the full sequence of an alias starting at start.
func (h *Hedger) Plan(symbolAlias string, start time.Time) ([]scheduler.Event, error) {
	st, ok := h.book.Get(symbolAlias)
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownAlias, "plan hedge, alias: %s", symbolAlias)
	}
	if _, busy := h.inFlight[symbolAlias]; busy {
		return nil, errors.Wrapf(exception.ErrHedgeInFlight, "plan hedge, alias: %s", symbolAlias)
	}

	cfg := st.Config()
	attempts := max(cfg.MinimumHedgeAttempt, 1)
	events := make([]scheduler.Event, 0, attempts+3)
	for i := range attempts {
		at := start.Add(time.Duration(i) * cfg.HedgeOrderInterval)
		events = append(events, h.timer.Schedule(at, PriorityHedge, ActionAttempt, Step{SymbolAlias: symbolAlias, Attempt: i + 1, Of: attempts}))
	}
	final := start.Add(cfg.HedgePeriod)
	step := Step{SymbolAlias: symbolAlias, Of: attempts}
	events = append(events,
		h.timer.Schedule(final, PriorityHedge, ActionFinal, step),
		h.timer.Schedule(final.Add(HealthCheckDelay), PriorityHedge, ActionHealthCheck, step),
		h.timer.Schedule(final.Add(EscalationDelay), PriorityHedge, ActionEscalate, step),
	)
	h.inFlight[symbolAlias] = final.Add(EscalationDelay)

	logs.Infof("hedge planned, alias: %s, start: %s, attempts: %d, final: %s", symbolAlias, start.Format(time.RFC3339), attempts, final.Format(time.RFC3339))
	return events, nil
}

func (h *Hedger) InFlight(symbolAlias string) bool {
	_, ok := h.inFlight[symbolAlias]
	return ok
}

// Cancel drops the pending steps of an alias. It returns how many were removed.
func (h *Hedger) Cancel(symbolAlias string) int {
	delete(h.inFlight, symbolAlias)
	return h.timer.Cancel(func(ev scheduler.Event) bool {
		step, ok := ev.Args.(Step)
		return ok && Handles(ev.Action) && step.SymbolAlias == symbolAlias
	})
}

// Handle runs one due hedge step.
func (h *Hedger) Handle(ctx context.Context, ev scheduler.Event) error {
	step, ok := ev.Args.(Step)
	if !ok {
		return errors.Wrapf(exception.ErrInvalidArgument, "hedge action %s, args: %T", ev.Action, ev.Args)
	}
	st, ok := h.book.Get(step.SymbolAlias)
	if !ok {
		return errors.Wrapf(exception.ErrUnknownAlias, "hedge action %s, alias: %s", ev.Action, step.SymbolAlias)
	}

	switch ev.Action {
	case ActionAttempt:
		return h.attempt(ctx, st, step)
	case ActionFinal:
		return h.final(ctx, st)
	case ActionHealthCheck:
		return h.healthCheck(ctx, st)
	case ActionEscalate:
		return h.escalate(ctx, st)
	default:
		return errors.Wrapf(exception.ErrUnknownAction, "action: %s", ev.Action)
	}
}

func (h *Hedger) attempt(ctx context.Context, st *alias.State, step Step) error {
	cfg := st.Config()
	if step.Attempt == 1 {
		st.StartHedging(h.cfg.Now())
		if n := h.sub.CancelWorking(ctx, cfg.SymbolAlias, schema.PurposeEntry); n > 0 {
			logs.Infof("hedge started, alias: %s, cancel working entry: %d", cfg.SymbolAlias, n)
		}
	}

	size := st.UpdateHedgeSizing()
	if size == 0 {
		logs.Debugf("hedge attempt %d/%d, alias: %s, nothing to hedge", step.Attempt, step.Of, cfg.SymbolAlias)
		return nil
	}

	left := int64(max(step.Of-step.Attempt+1, 1))
	qty := max((size+left-1)/left, cfg.HedgeMinimumContractSize)
	qty = min(qty, size, cfg.MaxOrderSize)
	return h.submit(ctx, st, cfg.HedgePriceType, qty)
}

// final cancels resting hedge limits and sends the uncovered size at market.
// Cancelled limits stay working until the exchange acknowledges them, so
// their size is picked up by the health check rather than sent here, where a
// limit filling before its cancel lands would overshoot the position.
func (h *Hedger) final(ctx context.Context, st *alias.State) error {
	st.StartHedging(h.cfg.Now())
	if n := h.sub.CancelWorking(ctx, st.SymbolAlias(), schema.PurposeHedge); n > 0 {
		logs.Infof("final hedge, alias: %s, cancel working hedge: %d", st.SymbolAlias(), n)
	}
	return h.sweep(ctx, st, st.UpdateHedgeSizing())
}

func (h *Hedger) healthCheck(ctx context.Context, st *alias.State) error {
	if st.NetPosition == 0 {
		return nil
	}
	size := st.UpdateHedgeSizing()
	if size > 0 {
		logs.Warnf("hedge health check, alias: %s, net: %d, resend: %d", st.SymbolAlias(), st.NetPosition, size)
	}
	return h.sweep(ctx, st, size)
}

func (h *Hedger) escalate(ctx context.Context, st *alias.State) error {
	delete(h.inFlight, st.SymbolAlias())
	if st.NetPosition == 0 {
		logs.Infof("hedge complete, alias: %s", st.SymbolAlias())
		return nil
	}

	st.ManualReview = true
	h.notifier.Notify(ctx, notify.Alert{
		Level:       notify.LevelCritical,
		Title:       "hedging failed",
		Message:     "position still open after final hedge, manual intervention required",
		Session:     h.cfg.Session,
		SymbolAlias: st.SymbolAlias(),
		Fields: map[string]string{
			"netPosition":    itoa(st.NetPosition),
			"workingToHedge": itoa(st.WorkingToHedge),
		},
		At: h.cfg.Now(),
	})
	return errors.Wrapf(exception.ErrHedgeEscalation, "alias: %s, net: %d", st.SymbolAlias(), st.NetPosition)
}

// sweep sends size at market in chunks of the alias max order size.
func (h *Hedger) sweep(ctx context.Context, st *alias.State, size int64) error {
	chunk := max(st.Config().MaxOrderSize, 1)
	for size > 0 {
		qty := min(size, chunk)
		if err := h.submit(ctx, st, schema.PriceTypeMarket, qty); err != nil {
			return err
		}
		size -= qty
	}
	return nil
}

func (h *Hedger) submit(ctx context.Context, st *alias.State, priceType schema.PriceType, qty int64) error {
	cfg := st.Config()
	side := st.HedgeSide()
	if side == "" {
		return nil
	}
	o := og.NewOrder{
		SymbolAlias: cfg.SymbolAlias,
		Symbol:      cfg.Symbol,
		Exchange:    cfg.Exchange,
		Side:        side,
		PriceType:   priceType,
		Qty:         qty,
		Purpose:     schema.PurposeHedge,
	}
	if priceType == schema.PriceTypeLimit {
		price, ok := st.PassivePrice(side)
		if !ok {
			logs.Warnf("hedge skipped, alias: %s, side: %s, no %s touch", cfg.SymbolAlias, side, side)
			return nil
		}
		o.Price = price
	}

	id, err := h.sub.Submit(ctx, o)
	if err != nil {
		return errors.Wrapf(err, "submit hedge, alias: %s, side: %s, qty: %d", cfg.SymbolAlias, side, qty)
	}
	logs.Infof("hedge order sent, id: %s, alias: %s, side: %s, type: %s, qty: %d", id, cfg.SymbolAlias, side, priceType, qty)
	return nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
