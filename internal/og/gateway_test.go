package og

import (
	"context"
	"testing"

	"eventtrader/internal/alias"
	"eventtrader/internal/chaos"
	"eventtrader/internal/schema"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paperRun struct {
	ledger  *Ledger
	gateway *PaperGateway
	state   *alias.State
	events  []schema.OrderEvent
}

func newPaperRun(t *testing.T, cfg GatewayConfig) *paperRun {
	t.Helper()
	run := &paperRun{}
	book := alias.NewBook()
	st, err := book.Add(alias.Config{
		SymbolAlias: "ES",
		Symbol:      "ESZ6",
		Action:      schema.AliasActionHedge,
		HedgeStart:  t0,
		MaxPosition: 10,
	})
	require.NoError(t, err)
	run.state = st
	gw, err := NewPaperGateway(cfg, func(ev schema.OrderEvent) {
		run.events = append(run.events, ev)
	})
	require.NoError(t, err)
	run.gateway = gw
	run.ledger = NewLedger(LedgerConfig{Session: "paper"}, gw, book, nil)
	return run
}

// drain applies every emitted event and returns the errors seen.
func (r *paperRun) drain() []error {
	var errs []error
	for len(r.events) > 0 {
		ev := r.events[0]
		r.events = r.events[1:]
		if _, err := r.ledger.Apply(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func TestPaperGatewayMarketOrder(t *testing.T) {
	testCases := []struct {
		desc  string
		chaos *chaos.Config
	}{
		{"clean", nil},
		{"every event duplicated", &chaos.Config{Seed: 3, DuplicateRate: 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			run := newPaperRun(t, GatewayConfig{Chaos: tc.chaos})
			id, err := run.ledger.SubmitOrder(context.Background(), NewOrder{
				SymbolAlias: "ES",
				Side:        schema.SideSell,
				PriceType:   schema.PriceTypeMarket,
				Qty:         3,
				Purpose:     schema.PurposeHedge,
			})
			require.NoError(t, err)
			assert.Empty(t, run.drain())

			assert.True(t, run.ledger.Completed(id))
			assert.Equal(t, int64(-3), run.state.NetPosition)
			assert.Zero(t, run.state.WorkingToHedge)
		})
	}
}

func TestPaperGatewayRestingLimit(t *testing.T) {
	run := newPaperRun(t, GatewayConfig{})
	ctx := context.Background()
	id, err := run.ledger.SubmitOrder(ctx, NewOrder{
		SymbolAlias: "ES",
		Side:        schema.SideBuy,
		PriceType:   schema.PriceTypeLimit,
		Price:       decimal.NewFromInt(100),
		Qty:         2,
		Purpose:     schema.PurposeHedge,
	})
	require.NoError(t, err)
	require.Empty(t, run.drain())
	assert.Equal(t, 1, run.gateway.Resting())

	require.NoError(t, run.ledger.SubmitModify(ctx, id, decimal.NewFromInt(101), 2))
	require.Empty(t, run.drain())
	r, _ := run.ledger.Order(id)
	assert.True(t, decimal.NewFromInt(101).Equal(r.Price))

	run.gateway.OnMarket(schema.MarketUpdate{SymbolAlias: "ES", Feed: schema.FeedBBO, BidPrice: decimal.NewFromInt(100), AskPrice: decimal.NewFromInt(102)})
	assert.Empty(t, run.events, "touch did not cross")

	run.gateway.OnMarket(schema.MarketUpdate{SymbolAlias: "ES", Feed: schema.FeedBBO, BidPrice: decimal.NewFromInt(100), AskPrice: decimal.NewFromInt(101)})
	require.Empty(t, run.drain())
	assert.True(t, run.ledger.Completed(id))
	assert.Equal(t, int64(2), run.state.NetPosition)
}

func TestPaperGatewayCancel(t *testing.T) {
	run := newPaperRun(t, GatewayConfig{})
	ctx := context.Background()
	id, err := run.ledger.SubmitOrder(ctx, NewOrder{
		SymbolAlias: "ES",
		Side:        schema.SideBuy,
		PriceType:   schema.PriceTypeLimit,
		Price:       decimal.NewFromInt(100),
		Qty:         2,
		Purpose:     schema.PurposeHedge,
	})
	require.NoError(t, err)
	require.Empty(t, run.drain())
	assert.Equal(t, int64(2), run.state.WorkingToHedge)

	require.NoError(t, run.ledger.SubmitCancel(ctx, id))
	require.Empty(t, run.drain())
	assert.True(t, run.ledger.Completed(id))
	assert.Zero(t, run.state.WorkingToHedge)
	assert.Zero(t, run.gateway.Resting())
}

func TestPaperGatewayFlushReleasesHeldEvents(t *testing.T) {
	run := newPaperRun(t, GatewayConfig{Chaos: &chaos.Config{Seed: 3, ReorderWindow: 64}})

	req := schema.OrderRequest{Kind: schema.RequestNew, InternalID: "x-1", SymbolAlias: "ES", Side: schema.SideBuy, PriceType: schema.PriceTypeMarket, Qty: 1}
	require.NoError(t, run.gateway.Send(context.Background(), req))
	assert.Empty(t, run.events, "held by the reorder window")

	run.gateway.Flush()
	kinds := make(map[schema.OrderEventKind]int)
	for _, ev := range run.events {
		kinds[ev.Kind]++
	}
	assert.Len(t, run.events, 6)
	assert.Equal(t, 1, kinds[schema.OrderFill])
	assert.Equal(t, 1, kinds[schema.OrderComplete])

	run.gateway.Flush()
	assert.Len(t, run.events, 6)
}
