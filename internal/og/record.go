package og

import (
	"time"

	"eventtrader/internal/schema"

	"github.com/shopspring/decimal"
)

// State is a lifecycle state of an order or of its pending amendment.
type State uint8

const (
	StateUnknown State = iota
	StateCreated
	StateRequested
	StateSentToExchange
	StateAckByGateway
	StateTriggerPending
	StateTriggered
	StateOpen
	StatePartiallyFilled
	StateFilled
	StateRejected
	StateModified
	StateNotModified
	StateCancelAcked
	StateComplete
)

var stateNames = [...]string{
	StateUnknown:         "unknown",
	StateCreated:         "created",
	StateRequested:       "requested",
	StateSentToExchange:  "sent_to_exchange",
	StateAckByGateway:    "ack_by_gateway",
	StateTriggerPending:  "trigger_pending",
	StateTriggered:       "triggered",
	StateOpen:            "open",
	StatePartiallyFilled: "partially_filled",
	StateFilled:          "filled",
	StateRejected:        "rejected",
	StateModified:        "modified",
	StateNotModified:     "not_modified",
	StateCancelAcked:     "cancel_acked",
	StateComplete:        "complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) bit() uint32 {
	return 1 << s
}

func states(list ...State) uint32 {
	var m uint32
	for _, s := range list {
		m |= s.bit()
	}
	return m
}

// Stamp is one delivered event as seen by a record.
type Stamp struct {
	Kind    schema.OrderEventKind
	From    State
	To      State
	Changed bool
	At      time.Time
}

// Amendment is the modify or cancel sub-lifecycle riding on an order.
type Amendment struct {
	Kind        schema.RequestKind
	State       State
	Price       decimal.Decimal
	Qty         int64
	Reason      string
	RequestedAt time.Time

	visited uint32
}

// Resolved reports whether the exchange has answered the amendment.
func (a *Amendment) Resolved() bool {
	if a == nil {
		return true
	}
	return states(StateModified, StateNotModified, StateRejected, StateCancelAcked, StateComplete)&a.State.bit() != 0
}

func (a *Amendment) visit(s State) {
	a.State = s
	a.visited |= s.bit()
}

// Record is the ledger's view of one internal order id.
type Record struct {
	InternalID  string
	SymbolAlias string
	Symbol      string
	Exchange    string
	Side        schema.Side
	PriceType   schema.PriceType
	Price       decimal.Decimal
	Qty         int64
	FilledQty   int64
	Purpose     schema.Purpose
	LastRequest schema.RequestKind
	State       State
	Amend       *Amendment
	Cancelled   bool
	Reason      string
	CreatedAt   time.Time
	Transitions []Stamp

	seq      uint64
	visited  uint32
	released bool
	fillIDs  map[string]struct{}
}

// Leaves is the quantity not yet filled.
func (r *Record) Leaves() int64 {
	if r.FilledQty >= r.Qty {
		return 0
	}
	return r.Qty - r.FilledQty
}

// Working reports whether the order still rests or may still fill.
func (r *Record) Working() bool {
	return !r.released
}

// Visited reports whether the order family ever reached s.
func (r *Record) Visited(s State) bool {
	return r.visited&s.bit() != 0
}

func (r *Record) visit(s State) {
	r.State = s
	r.visited |= s.bit()
}

func (r *Record) stamp(kind schema.OrderEventKind, from, to State, changed bool, at time.Time) {
	r.Transitions = append(r.Transitions, Stamp{Kind: kind, From: from, To: to, Changed: changed, At: at})
}

// amendable reports whether the order can still take a modify or cancel.
func (r *Record) amendable() bool {
	if r.released || r.Cancelled {
		return false
	}
	return r.State != StateCreated && r.State != StateFilled && r.State != StateRejected && r.State != StateComplete
}
