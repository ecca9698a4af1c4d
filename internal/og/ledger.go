// Package og tracks every order, modify and cancel request of a session
// through the exchange-protocol lifecycle.
package og

import (
	"context"
	"sort"
	"time"

	"eventtrader/internal/scheduler"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	// ActionAckTimeout fires when an order sent to the exchange is still unacknowledged.
	ActionAckTimeout scheduler.Action = "order.ack_timeout"

	PriorityAckTimeout = 50
)

// Sender hands requests to the exchange gateway.
type Sender interface {
	Send(ctx context.Context, req schema.OrderRequest) error
}

// PositionSink receives fills and working size changes for an alias.
type PositionSink interface {
	ApplyFill(symbolAlias string, purpose schema.Purpose, side schema.Side, qty int64) error
	AdjustWorking(symbolAlias string, purpose schema.Purpose, delta int64)
}

// Timer schedules follow-up checks.
type Timer interface {
	Schedule(at time.Time, priority int, action scheduler.Action, args any) scheduler.Event
}

// LedgerConfig controls the ledger behavior.
type LedgerConfig struct {
	Session    string
	AckTimeout time.Duration
	Now        func() time.Time
}

// NewOrder describes an order to submit.
type NewOrder struct {
	SymbolAlias string
	Symbol      string
	Exchange    string
	Side        schema.Side
	PriceType   schema.PriceType
	Price       decimal.Decimal
	Qty         int64
	Purpose     schema.Purpose
}

// Transition is the outcome of one delivered event.
type Transition struct {
	ID      string
	Kind    schema.OrderEventKind
	From    State
	To      State
	Changed bool
	Removed bool
	Record  *Record
}

type handler func(r *Record, ev schema.OrderEvent) (Transition, error)

// Ledger owns the order records of one session. It is not safe for
// concurrent use; the session goroutine is its only caller.
type Ledger struct {
	cfg        LedgerConfig
	ids        *IDGenerator
	sender     Sender
	sink       PositionSink
	timer      Timer
	orders     map[string]*Record
	tombstones map[string]time.Time
	handlers   map[schema.OrderEventKind]handler
}

// NewLedger creates an empty ledger.
func NewLedger(cfg LedgerConfig, sender Sender, sink PositionSink, timer Timer) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Ledger{
		cfg:        cfg,
		ids:        NewIDGenerator(cfg.Session),
		sender:     sender,
		sink:       sink,
		timer:      timer,
		orders:     make(map[string]*Record),
		tombstones: make(map[string]time.Time),
	}
	l.handlers = l.dispatchTable()
	return l
}

// SubmitOrder records a new order and sends it. A send failure leaves the
// record in Rejected; the id is returned either way.
func (l *Ledger) SubmitOrder(ctx context.Context, o NewOrder) (string, error) {
	if err := validateNewOrder(o); err != nil {
		return "", err
	}
	now := l.cfg.Now()
	id, seq := l.ids.Next()
	r := &Record{
		InternalID:  id,
		SymbolAlias: o.SymbolAlias,
		Symbol:      o.Symbol,
		Exchange:    o.Exchange,
		Side:        o.Side,
		PriceType:   o.PriceType,
		Price:       o.Price,
		Qty:         o.Qty,
		Purpose:     o.Purpose,
		LastRequest: schema.RequestNew,
		CreatedAt:   now,
		seq:         seq,
		fillIDs:     make(map[string]struct{}),
	}
	r.visit(StateCreated)
	l.orders[id] = r
	l.sink.AdjustWorking(r.SymbolAlias, r.Purpose, r.Qty)

	err := l.sender.Send(ctx, schema.OrderRequest{
		Kind:        schema.RequestNew,
		InternalID:  id,
		SymbolAlias: r.SymbolAlias,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		Side:        r.Side,
		PriceType:   r.PriceType,
		Price:       r.Price,
		Qty:         r.Qty,
		Purpose:     r.Purpose,
		At:          now,
	})
	if err != nil {
		from := r.State
		r.visit(StateRejected)
		r.Reason = err.Error()
		l.release(r)
		r.stamp(schema.KindUnknown, from, StateRejected, true, now)
		return id, errors.Wrapf(err, "send order, id: %s", id)
	}
	return id, nil
}

// SubmitModify requests a new price and quantity for a working order.
func (l *Ledger) SubmitModify(ctx context.Context, id string, price decimal.Decimal, qty int64) error {
	r, err := l.amendTarget(id)
	if err != nil {
		return err
	}
	if qty <= r.FilledQty || (r.PriceType == schema.PriceTypeLimit && !price.IsPositive()) {
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "modify id: %s, price: %s, qty: %d, filled: %d", id, price, qty, r.FilledQty)
	}
	return l.amend(ctx, r, &Amendment{Kind: schema.RequestModify, Price: price, Qty: qty})
}

// SubmitCancel requests cancellation of a working order.
func (l *Ledger) SubmitCancel(ctx context.Context, id string) error {
	r, err := l.amendTarget(id)
	if err != nil {
		return err
	}
	return l.amend(ctx, r, &Amendment{Kind: schema.RequestCancel})
}

func (l *Ledger) amendTarget(id string) (*Record, error) {
	r, ok := l.orders[id]
	if !ok {
		if _, done := l.tombstones[id]; done {
			return nil, errors.Wrapf(exception.ErrInvalidTransition, "amend completed order, id: %s", id)
		}
		return nil, errors.Wrapf(exception.ErrUnknownOrder, "amend id: %s", id)
	}
	if !r.amendable() {
		return nil, errors.Wrapf(exception.ErrInvalidTransition, "amend id: %s, state: %s", id, r.State)
	}
	if !r.Amend.Resolved() {
		return nil, errors.Wrapf(exception.ErrAmendPending, "amend id: %s, pending: %s", id, r.Amend.Kind)
	}
	return r, nil
}

func (l *Ledger) amend(ctx context.Context, r *Record, a *Amendment) error {
	now := l.cfg.Now()
	a.RequestedAt = now
	a.visit(StateRequested)
	r.Amend = a
	r.LastRequest = a.Kind

	req := schema.OrderRequest{
		Kind:        a.Kind,
		InternalID:  r.InternalID,
		SymbolAlias: r.SymbolAlias,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		Side:        r.Side,
		PriceType:   r.PriceType,
		Price:       r.Price,
		Qty:         r.Qty,
		Purpose:     r.Purpose,
		At:          now,
	}
	if a.Kind == schema.RequestModify {
		req.Price, req.Qty = a.Price, a.Qty
	}
	if err := l.sender.Send(ctx, req); err != nil {
		a.visit(StateRejected)
		a.Reason = err.Error()
		return errors.Wrapf(err, "send %s, id: %s", a.Kind, r.InternalID)
	}
	return nil
}

// Apply routes one lifecycle event to its transition.
func (l *Ledger) Apply(ev schema.OrderEvent) (Transition, error) {
	h, ok := l.handlers[ev.Kind]
	if !ok {
		return Transition{ID: ev.InternalID, Kind: ev.Kind}, errors.Wrapf(exception.ErrUnknownEvent, "id: %s, kind: %d", ev.InternalID, uint8(ev.Kind))
	}
	if ev.At.IsZero() {
		ev.At = l.cfg.Now()
	}
	r, ok := l.orders[ev.InternalID]
	if !ok {
		if _, done := l.tombstones[ev.InternalID]; done {
			if ev.Kind == schema.OrderComplete || ev.Kind == schema.ModifyComplete {
				return Transition{ID: ev.InternalID, Kind: ev.Kind, From: StateComplete, To: StateComplete}, nil
			}
			return Transition{ID: ev.InternalID, Kind: ev.Kind, From: StateComplete, To: StateComplete},
				errors.Wrapf(exception.ErrInvalidTransition, "id: %s, kind: %s, order already complete", ev.InternalID, ev.Kind)
		}
		return Transition{ID: ev.InternalID, Kind: ev.Kind}, errors.Wrapf(exception.ErrUnknownOrder, "id: %s, kind: %s", ev.InternalID, ev.Kind)
	}
	return h(r, ev)
}

// CheckAck reports whether an order is still waiting for its gateway acknowledgement.
func (l *Ledger) CheckAck(id string) (*Record, bool) {
	r, ok := l.orders[id]
	if !ok {
		return nil, false
	}
	return r, r.State == StateSentToExchange
}

// Order returns the live record of id.
func (l *Ledger) Order(id string) (*Record, bool) {
	r, ok := l.orders[id]
	return r, ok
}

// Completed reports whether id reached Complete and was removed.
func (l *Ledger) Completed(id string) bool {
	_, ok := l.tombstones[id]
	return ok
}

// Drop removes a record that will never complete, such as a retained rejection.
func (l *Ledger) Drop(id string) (*Record, bool) {
	r, ok := l.orders[id]
	if !ok {
		return nil, false
	}
	l.release(r)
	delete(l.orders, id)
	return r, true
}

func (l *Ledger) Len() int {
	return len(l.orders)
}

// Records returns every record in submission order.
func (l *Ledger) Records() []*Record {
	out := make([]*Record, 0, len(l.orders))
	for _, r := range l.orders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Working returns the orders of an alias and purpose that may still fill.
func (l *Ledger) Working(symbolAlias string, purpose schema.Purpose) []*Record {
	var out []*Record
	for _, r := range l.Records() {
		if r.SymbolAlias == symbolAlias && r.Purpose == purpose && r.Working() {
			out = append(out, r)
		}
	}
	return out
}

// WorkingQty sums the leaves of working orders on one side of an alias.
func (l *Ledger) WorkingQty(symbolAlias string, side schema.Side) int64 {
	var total int64
	for _, r := range l.orders {
		if r.SymbolAlias == symbolAlias && r.Side == side && r.Working() {
			total += r.Leaves()
		}
	}
	return total
}

// CountAtPrice counts working limit orders resting at price.
func (l *Ledger) CountAtPrice(symbolAlias string, side schema.Side, price decimal.Decimal) int {
	n := 0
	for _, r := range l.orders {
		if r.SymbolAlias == symbolAlias && r.Side == side && r.Working() &&
			r.PriceType == schema.PriceTypeLimit && r.Price.Equal(price) {
			n++
		}
	}
	return n
}

// release returns the unfilled size of r to its alias once.
func (l *Ledger) release(r *Record) {
	if r.released {
		return
	}
	r.released = true
	if leaves := r.Leaves(); leaves > 0 {
		l.sink.AdjustWorking(r.SymbolAlias, r.Purpose, -leaves)
	}
}

func validateNewOrder(o NewOrder) error {
	switch {
	case o.SymbolAlias == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty symbol alias")
	case !o.Side.Valid():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "alias: %s, side: %q", o.SymbolAlias, o.Side)
	case !o.PriceType.Valid():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "alias: %s, price type: %q", o.SymbolAlias, o.PriceType)
	case o.Qty <= 0:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "alias: %s, qty: %d", o.SymbolAlias, o.Qty)
	case o.PriceType == schema.PriceTypeLimit && !o.Price.IsPositive():
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "alias: %s, limit price: %s", o.SymbolAlias, o.Price)
	}
	return nil
}
