package og

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventtrader/internal/alias"
	"eventtrader/internal/scheduler"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.October, 2, 8, 15, 0, 0, time.UTC)

type recordingSender struct {
	reqs []schema.OrderRequest
	err  error
}

func (s *recordingSender) Send(ctx context.Context, req schema.OrderRequest) error {
	s.reqs = append(s.reqs, req)
	return s.err
}

type fixture struct {
	ledger *Ledger
	book   *alias.Book
	state  *alias.State
	sender *recordingSender
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := alias.NewBook()
	st, err := book.Add(alias.Config{
		SymbolAlias:  "ES",
		Symbol:       "ESZ6",
		Exchange:     "CME",
		Action:       schema.AliasActionEnter,
		SideToEnter:  schema.SideBuy,
		ContractSize: 10,
		EntryStart:   t0,
		MaxPosition:  10,
		IsTradable:   true,
	})
	require.NoError(t, err)
	sched := scheduler.New(scheduler.WithClock(func() time.Time { return t0 }))
	sender := &recordingSender{}
	l := NewLedger(LedgerConfig{Session: "test", AckTimeout: 5 * time.Second, Now: func() time.Time { return t0 }}, sender, book, sched)
	return &fixture{ledger: l, book: book, state: st, sender: sender, sched: sched}
}

func (f *fixture) submit(t *testing.T, qty int64) string {
	t.Helper()
	id, err := f.ledger.SubmitOrder(context.Background(), NewOrder{
		SymbolAlias: "ES",
		Symbol:      "ESZ6",
		Side:        schema.SideBuy,
		PriceType:   schema.PriceTypeLimit,
		Price:       decimal.NewFromInt(5000),
		Qty:         qty,
		Purpose:     schema.PurposeEntry,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) deliver(t *testing.T, id string, kinds ...schema.OrderEventKind) Transition {
	t.Helper()
	var tr Transition
	for _, k := range kinds {
		var err error
		tr, err = f.ledger.Apply(schema.OrderEvent{Kind: k, InternalID: id, SymbolAlias: "ES", At: t0})
		require.NoError(t, err, k.String())
	}
	return tr
}

func fill(id, fillID string, qty, cum int64) schema.OrderEvent {
	return schema.OrderEvent{Kind: schema.OrderFill, InternalID: id, SymbolAlias: "ES", FillID: fillID, FillQty: qty, CumQty: cum, At: t0}
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, 4)
	require.Len(t, f.sender.reqs, 1)
	assert.Equal(t, schema.RequestNew, f.sender.reqs[0].Kind)
	assert.Equal(t, int64(4), f.state.WorkingToEnter)

	tr := f.deliver(t, id, schema.OrderReceivedFromClient, schema.OrderSentToExchange)
	assert.Equal(t, StateSentToExchange, tr.To)
	assert.True(t, tr.Changed)
	assert.Equal(t, 1, f.sched.Len(), "ack timeout scheduled")

	f.deliver(t, id, schema.OrderReceivedByGateway, schema.OrderOpen)

	tr, err := f.ledger.Apply(fill(id, "f1", 1, 1))
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFilled, tr.To)
	assert.Equal(t, int64(1), f.state.NetPosition)
	assert.Equal(t, int64(3), f.state.WorkingToEnter)

	tr = f.deliver(t, id, schema.OrderOpen)
	assert.Equal(t, StateOpen, tr.To, "partial fill returns to open")

	tr, err = f.ledger.Apply(fill(id, "f2", 3, 4))
	require.NoError(t, err)
	assert.Equal(t, StateFilled, tr.To)
	assert.Equal(t, int64(4), f.state.NetPosition)
	assert.Zero(t, f.state.WorkingToEnter)

	tr = f.deliver(t, id, schema.OrderComplete)
	assert.True(t, tr.Removed)
	assert.Equal(t, StateComplete, tr.To)
	assert.Zero(t, f.ledger.Len())
	assert.True(t, f.ledger.Completed(id))

	tr = f.deliver(t, id, schema.OrderComplete)
	assert.False(t, tr.Changed, "duplicate complete is a no-op")

	_, err = f.ledger.Apply(fill(id, "f3", 1, 5))
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
	assert.Equal(t, int64(4), f.state.NetPosition)
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	sequence := []schema.OrderEventKind{
		schema.OrderSentToExchange,
		schema.OrderReceivedByGateway,
		schema.OrderTriggerPending,
		schema.OrderTrigger,
		schema.OrderOpen,
	}

	for i := range sequence {
		prefix := sequence[:i+1]
		t.Run(prefix[len(prefix)-1].String(), func(t *testing.T) {
			once := newFixture(t)
			onceID := once.submit(t, 2)
			once.deliver(t, onceID, prefix...)

			twice := newFixture(t)
			twiceID := twice.submit(t, 2)
			for _, k := range prefix {
				twice.deliver(t, twiceID, k)
				tr := twice.deliver(t, twiceID, k)
				assert.False(t, tr.Changed, "second %s", k)
			}

			a, _ := once.ledger.Order(onceID)
			b, _ := twice.ledger.Order(twiceID)
			assert.Equal(t, a.State, b.State)
		})
	}

	t.Run("fill", func(t *testing.T) {
		f := newFixture(t)
		id := f.submit(t, 2)
		f.deliver(t, id, schema.OrderSentToExchange, schema.OrderReceivedByGateway, schema.OrderOpen)
		for range 3 {
			_, err := f.ledger.Apply(fill(id, "f1", 1, 1))
			require.NoError(t, err)
		}
		r, _ := f.ledger.Order(id)
		assert.Equal(t, int64(1), r.FilledQty)
		assert.Equal(t, int64(1), f.state.NetPosition)

		// same execution reported without an id is recognised by cumulative quantity
		_, err := f.ledger.Apply(fill(id, "", 1, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(1), f.state.NetPosition)
	})

	t.Run("fill without id or cumulative qty", func(t *testing.T) {
		f := newFixture(t)
		id := f.submit(t, 4)
		f.deliver(t, id, schema.OrderSentToExchange, schema.OrderReceivedByGateway, schema.OrderOpen)
		for range 2 {
			tr, err := f.ledger.Apply(fill(id, "", 2, 0))
			require.ErrorIs(t, err, exception.ErrInvalidFill)
			assert.False(t, tr.Changed)
		}
		r, _ := f.ledger.Order(id)
		assert.Equal(t, StateOpen, r.State)
		assert.Zero(t, r.FilledQty)
		assert.Zero(t, f.state.NetPosition)
	})
}

func TestCompleteRequiresSentAndAck(t *testing.T) {
	testCases := []struct {
		desc  string
		steps []schema.OrderEventKind
		ok    bool
	}{
		{"from created", nil, false},
		{"sent without ack", []schema.OrderEventKind{schema.OrderSentToExchange}, false},
		{"acked", []schema.OrderEventKind{schema.OrderSentToExchange, schema.OrderReceivedByGateway}, true},
		{"rejected by exchange", []schema.OrderEventKind{schema.OrderSentToExchange, schema.OrderReject}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newFixture(t)
			id := f.submit(t, 2)
			f.deliver(t, id, tc.steps...)
			before, _ := f.ledger.Order(id)
			state := before.State

			tr, err := f.ledger.Apply(schema.OrderEvent{Kind: schema.OrderComplete, InternalID: id, At: t0})
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, tr.Removed)
				assert.Zero(t, f.state.WorkingToEnter)
				return
			}
			require.ErrorIs(t, err, exception.ErrInvalidTransition)
			after, ok := f.ledger.Order(id)
			require.True(t, ok)
			assert.Equal(t, state, after.State)
			assert.Equal(t, int64(2), f.state.WorkingToEnter)
		})
	}
}

func TestUnknownOrder(t *testing.T) {
	f := newFixture(t)
	before := f.state.View()

	_, err := f.ledger.Apply(fill("never-issued", "f1", 1, 1))
	require.ErrorIs(t, err, exception.ErrUnknownOrder)
	assert.Equal(t, before, f.state.View())

	_, err = f.ledger.Apply(schema.OrderEvent{Kind: schema.KindUnknown, InternalID: "x"})
	require.ErrorIs(t, err, exception.ErrUnknownEvent)
}

func TestInvalidFill(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, 2)

	_, err := f.ledger.Apply(fill(id, "f0", 1, 1))
	require.ErrorIs(t, err, exception.ErrInvalidTransition, "not sent yet")

	f.deliver(t, id, schema.OrderSentToExchange, schema.OrderReceivedByGateway, schema.OrderOpen)
	_, err = f.ledger.Apply(fill(id, "f1", 3, 3))
	require.ErrorIs(t, err, exception.ErrInvalidFill)
	r, _ := f.ledger.Order(id)
	assert.Zero(t, r.FilledQty)
	assert.Zero(t, f.state.NetPosition)
}

func TestModify(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, 2)
	f.deliver(t, id, schema.OrderSentToExchange, schema.OrderReceivedByGateway, schema.OrderOpen)

	require.NoError(t, f.ledger.SubmitModify(context.Background(), id, decimal.NewFromInt(5001), 3))
	require.ErrorIs(t, f.ledger.SubmitModify(context.Background(), id, decimal.NewFromInt(5002), 3), exception.ErrAmendPending)
	last := f.sender.reqs[len(f.sender.reqs)-1]
	assert.Equal(t, schema.RequestModify, last.Kind)
	assert.True(t, decimal.NewFromInt(5001).Equal(last.Price))

	_, err := f.ledger.Apply(schema.OrderEvent{Kind: schema.CancelCancel, InternalID: id, At: t0})
	require.ErrorIs(t, err, exception.ErrInvalidTransition, "cancel event for a modify")

	tr := f.deliver(t, id, schema.ModifySentToExchange, schema.ModifyReceivedByGateway, schema.ModifyModified)
	assert.Equal(t, StateModified, tr.To)
	r, _ := f.ledger.Order(id)
	assert.Equal(t, int64(3), r.Qty)
	assert.True(t, decimal.NewFromInt(5001).Equal(r.Price))
	assert.Equal(t, int64(3), f.state.WorkingToEnter)
	assert.Equal(t, schema.RequestModify, r.LastRequest)

	tr = f.deliver(t, id, schema.ModifyModified)
	assert.False(t, tr.Changed)

	tr = f.deliver(t, id, schema.ModifyComplete)
	assert.True(t, tr.Removed)
	assert.Zero(t, f.state.WorkingToEnter)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, 2)
	f.deliver(t, id, schema.OrderSentToExchange, schema.OrderReceivedByGateway, schema.OrderOpen)

	require.NoError(t, f.ledger.SubmitCancel(context.Background(), id))
	f.deliver(t, id, schema.CancelSentToExchange, schema.CancelReceivedByGateway, schema.CancelCancel)
	assert.Zero(t, f.state.WorkingToEnter)
	assert.Empty(t, f.ledger.Working("ES", schema.PurposeEntry))

	tr := f.deliver(t, id, schema.CancelComplete)
	assert.False(t, tr.Removed, "cancel complete only closes the amendment")
	assert.Equal(t, 1, f.ledger.Len())

	require.ErrorIs(t, f.ledger.SubmitCancel(context.Background(), id), exception.ErrInvalidTransition)

	tr = f.deliver(t, id, schema.OrderComplete)
	assert.True(t, tr.Removed)
}

func TestSendFailureIsRetained(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("gateway down")
	f.sender.err = boom

	id, err := f.ledger.SubmitOrder(context.Background(), NewOrder{
		SymbolAlias: "ES",
		Side:        schema.SideBuy,
		PriceType:   schema.PriceTypeMarket,
		Qty:         1,
		Purpose:     schema.PurposeHedge,
	})
	require.ErrorIs(t, err, boom)
	r, ok := f.ledger.Order(id)
	require.True(t, ok)
	assert.Equal(t, StateRejected, r.State)
	assert.Zero(t, f.state.WorkingToHedge)

	_, ok = f.ledger.Drop(id)
	assert.True(t, ok)
	assert.Zero(t, f.ledger.Len())
}

func TestAckTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, 1)
	f.deliver(t, id, schema.OrderSentToExchange)

	pending := f.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, ActionAckTimeout, pending[0].Action)
	assert.Equal(t, id, pending[0].Args)
	assert.True(t, t0.Add(5*time.Second).Equal(pending[0].At))

	_, waiting := f.ledger.CheckAck(id)
	assert.True(t, waiting)
	f.deliver(t, id, schema.OrderReceivedByGateway)
	_, waiting = f.ledger.CheckAck(id)
	assert.False(t, waiting)
}

func TestWorkingQueries(t *testing.T) {
	f := newFixture(t)
	a := f.submit(t, 1)
	b := f.submit(t, 2)
	f.deliver(t, a, schema.OrderSentToExchange)
	f.deliver(t, b, schema.OrderSentToExchange)

	assert.Equal(t, int64(3), f.ledger.WorkingQty("ES", schema.SideBuy))
	assert.Equal(t, 2, f.ledger.CountAtPrice("ES", schema.SideBuy, decimal.NewFromInt(5000)))
	assert.Zero(t, f.ledger.CountAtPrice("ES", schema.SideBuy, decimal.NewFromInt(4999)))

	working := f.ledger.Working("ES", schema.PurposeEntry)
	require.Len(t, working, 2)
	assert.Equal(t, a, working[0].InternalID)
}
