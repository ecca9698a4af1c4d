package og

import (
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// orderEdges lists, per target state, the states an order may advance from.
var orderEdges = map[State]uint32{
	StateSentToExchange: states(StateCreated),
	StateAckByGateway:   states(StateSentToExchange),
	StateTriggerPending: states(StateAckByGateway),
	StateTriggered:      states(StateTriggerPending),
	StateOpen:           states(StateAckByGateway, StateTriggered, StatePartiallyFilled),
	StateRejected:       states(StateCreated, StateSentToExchange, StateAckByGateway, StateTriggerPending),
}

// amendEdges is the same table for the modify and cancel families.
var amendEdges = map[State]uint32{
	StateSentToExchange: states(StateRequested),
	StateAckByGateway:   states(StateSentToExchange),
	StateModified:       states(StateSentToExchange, StateAckByGateway),
	StateNotModified:    states(StateSentToExchange, StateAckByGateway),
	StateCancelAcked:    states(StateSentToExchange, StateAckByGateway),
	StateRejected:       states(StateRequested, StateSentToExchange, StateAckByGateway),
	StateComplete:       states(StateCancelAcked, StateNotModified, StateRejected),
}

var (
	fillable  = states(StateSentToExchange, StateAckByGateway, StateTriggerPending, StateTriggered, StateOpen, StatePartiallyFilled)
	ackStates = states(StateAckByGateway, StateOpen, StateRejected)
)

func (l *Ledger) dispatchTable() map[schema.OrderEventKind]handler {
	order := func(to State) handler {
		return func(r *Record, ev schema.OrderEvent) (Transition, error) { return l.advance(r, ev, to) }
	}
	modify := func(to State) handler {
		return func(r *Record, ev schema.OrderEvent) (Transition, error) {
			return l.advanceAmend(r, ev, schema.RequestModify, to)
		}
	}
	cancel := func(to State) handler {
		return func(r *Record, ev schema.OrderEvent) (Transition, error) {
			return l.advanceAmend(r, ev, schema.RequestCancel, to)
		}
	}

	return map[schema.OrderEventKind]handler{
		schema.OrderReceivedFromClient: l.inform,
		schema.OrderReceivedByBroker:   l.inform,
		schema.OrderPending:            l.inform,
		schema.OrderStatus:             l.inform,
		schema.OrderGeneric:            l.inform,
		schema.OrderSentToExchange:     order(StateSentToExchange),
		schema.OrderReceivedByGateway:  order(StateAckByGateway),
		schema.OrderTriggerPending:     order(StateTriggerPending),
		schema.OrderTrigger:            order(StateTriggered),
		schema.OrderOpen:               order(StateOpen),
		schema.OrderReject:             order(StateRejected),
		schema.OrderNewOrdersFailed:    order(StateRejected),
		schema.OrderLinkOrdersFailed:   order(StateRejected),
		schema.OrderFill:               l.fill,
		schema.OrderComplete:           l.complete,

		schema.ModifyReceivedFromClient: l.inform,
		schema.ModifyReceivedByBroker:   l.inform,
		schema.ModifyPending:            l.inform,
		schema.ModifyStatus:             l.inform,
		schema.ModifyGeneric:            l.inform,
		schema.ModifyModify:             l.inform,
		schema.ModifyOpen:               l.inform,
		schema.ModifyTrigger:            l.inform,
		schema.ModifySentToExchange:     modify(StateSentToExchange),
		schema.ModifyReceivedByGateway:  modify(StateAckByGateway),
		schema.ModifyModified:           modify(StateModified),
		schema.ModifyNotModified:        modify(StateNotModified),
		schema.ModifyModificationFailed: modify(StateNotModified),
		schema.ModifyReject:             modify(StateRejected),
		schema.ModifyFill:               l.fill,
		schema.ModifyComplete:           l.complete,

		schema.CancelReceivedFromClient: l.inform,
		schema.CancelReceivedByBroker:   l.inform,
		schema.CancelPending:            l.inform,
		schema.CancelGeneric:            l.inform,
		schema.CancelSentToExchange:     cancel(StateSentToExchange),
		schema.CancelReceivedByGateway:  cancel(StateAckByGateway),
		schema.CancelCancel:             cancel(StateCancelAcked),
		schema.CancelNotCancelled:       cancel(StateNotModified),
		schema.CancelCancellationFailed: cancel(StateNotModified),
		schema.CancelReject:             cancel(StateRejected),
		schema.CancelComplete:           cancel(StateComplete),
	}
}

// inform stamps an event that carries no business change.
func (l *Ledger) inform(r *Record, ev schema.OrderEvent) (Transition, error) {
	r.stamp(ev.Kind, r.State, r.State, false, ev.At)
	return l.result(r, ev, r.State, false), nil
}

func (l *Ledger) advance(r *Record, ev schema.OrderEvent, to State) (Transition, error) {
	from := r.State
	switch {
	case orderEdges[to]&from.bit() != 0:
	case from == to || r.Visited(to):
		r.stamp(ev.Kind, from, from, false, ev.At)
		return l.result(r, ev, from, false), nil
	default:
		return l.invalid(r, ev, to)
	}

	r.visit(to)
	switch to {
	case StateSentToExchange:
		if l.cfg.AckTimeout > 0 && l.timer != nil {
			l.timer.Schedule(ev.At.Add(l.cfg.AckTimeout), PriorityAckTimeout, ActionAckTimeout, r.InternalID)
		}
	case StateRejected:
		r.Reason = ev.Reason
		l.release(r)
	}
	r.stamp(ev.Kind, from, to, true, ev.At)
	return l.result(r, ev, from, true), nil
}

func (l *Ledger) fill(r *Record, ev schema.OrderEvent) (Transition, error) {
	from := r.State
	// A fill without an execution id or cumulative quantity cannot be told
	// apart from its redelivery.
	if ev.FillID == "" && ev.CumQty <= 0 {
		return l.result(r, ev, from, false), errors.Wrapf(exception.ErrInvalidFill,
			"id: %s, alias: %s, kind: %s: fill carries neither fill id nor cumulative qty", r.InternalID, r.SymbolAlias, ev.Kind)
	}
	if ev.FillID != "" {
		if _, seen := r.fillIDs[ev.FillID]; seen {
			r.stamp(ev.Kind, from, from, false, ev.At)
			return l.result(r, ev, from, false), nil
		}
	}
	if ev.CumQty > 0 && ev.CumQty <= r.FilledQty {
		r.stamp(ev.Kind, from, from, false, ev.At)
		return l.result(r, ev, from, false), nil
	}
	if fillable&from.bit() == 0 {
		return l.invalid(r, ev, StatePartiallyFilled)
	}

	qty := ev.FillQty
	if qty <= 0 && ev.CumQty > r.FilledQty {
		qty = ev.CumQty - r.FilledQty
	}
	if qty <= 0 || qty > r.Leaves() {
		return l.result(r, ev, from, false), errors.Wrapf(exception.ErrInvalidFill,
			"id: %s, alias: %s, kind: %s, qty: %d, leaves: %d", r.InternalID, r.SymbolAlias, ev.Kind, qty, r.Leaves())
	}

	if ev.FillID != "" {
		r.fillIDs[ev.FillID] = struct{}{}
	}
	r.FilledQty += qty
	to := StatePartiallyFilled
	if r.Leaves() == 0 {
		to = StateFilled
	}
	r.visit(to)
	if !r.released {
		l.sink.AdjustWorking(r.SymbolAlias, r.Purpose, -qty)
		if to == StateFilled {
			r.released = true
		}
	}
	r.stamp(ev.Kind, from, to, true, ev.At)
	err := l.sink.ApplyFill(r.SymbolAlias, r.Purpose, r.Side, qty)
	if err != nil {
		err = errors.Wrapf(err, "id: %s, kind: %s", r.InternalID, ev.Kind)
	}
	return l.result(r, ev, from, true), err
}

func (l *Ledger) complete(r *Record, ev schema.OrderEvent) (Transition, error) {
	if !r.Visited(StateSentToExchange) || r.visited&ackStates == 0 {
		return l.invalid(r, ev, StateComplete)
	}
	from := r.State
	l.release(r)
	if r.Amend != nil && !r.Amend.Resolved() {
		r.Amend.visit(StateComplete)
	}
	r.visit(StateComplete)
	r.stamp(ev.Kind, from, StateComplete, true, ev.At)
	delete(l.orders, r.InternalID)
	l.tombstones[r.InternalID] = ev.At

	t := l.result(r, ev, from, true)
	t.Removed = true
	return t, nil
}

func (l *Ledger) advanceAmend(r *Record, ev schema.OrderEvent, kind schema.RequestKind, to State) (Transition, error) {
	a := r.Amend
	if a == nil || a.Kind != kind {
		return l.invalid(r, ev, to)
	}
	from := a.State
	switch {
	case amendEdges[to]&from.bit() != 0:
	case from == to || a.visited&to.bit() != 0:
		r.stamp(ev.Kind, r.State, r.State, false, ev.At)
		return l.amendResult(r, ev, from, false), nil
	default:
		return l.invalid(r, ev, to)
	}

	a.visit(to)
	switch to {
	case StateModified:
		if a.Price.IsPositive() {
			r.Price = a.Price
		}
		if a.Qty > 0 {
			before := r.Leaves()
			r.Qty = max(a.Qty, r.FilledQty)
			if !r.released {
				l.sink.AdjustWorking(r.SymbolAlias, r.Purpose, r.Leaves()-before)
				if r.Leaves() == 0 {
					r.released = true
				}
			}
		}
	case StateCancelAcked:
		r.Cancelled = true
		l.release(r)
	case StateRejected, StateNotModified:
		a.Reason = ev.Reason
	}
	r.stamp(ev.Kind, r.State, r.State, true, ev.At)
	return l.amendResult(r, ev, from, true), nil
}

func (l *Ledger) result(r *Record, ev schema.OrderEvent, from State, changed bool) Transition {
	return Transition{ID: r.InternalID, Kind: ev.Kind, From: from, To: r.State, Changed: changed, Record: r}
}

func (l *Ledger) amendResult(r *Record, ev schema.OrderEvent, from State, changed bool) Transition {
	return Transition{ID: r.InternalID, Kind: ev.Kind, From: from, To: r.Amend.State, Changed: changed, Record: r}
}

func (l *Ledger) invalid(r *Record, ev schema.OrderEvent, to State) (Transition, error) {
	current := r.State
	if ev.Kind.Family() != schema.FamilyOrder && r.Amend != nil {
		current = r.Amend.State
	}
	return l.result(r, ev, r.State, false), errors.Wrapf(exception.ErrInvalidTransition,
		"id: %s, alias: %s, kind: %s, from: %s, to: %s", r.InternalID, r.SymbolAlias, ev.Kind, current, to)
}
