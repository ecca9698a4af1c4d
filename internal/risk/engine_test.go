package risk

import (
	"testing"
	"time"

	"eventtrader/internal/schema"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 2, 12, 30, 0, 0, time.UTC)
	entry := Intent{
		SymbolAlias: "ES",
		Side:        schema.SideBuy,
		PriceType:   schema.PriceTypeLimit,
		Price:       decimal.NewFromInt(5000),
		Qty:         3,
		Purpose:     schema.PurposeEntry,
	}
	hedge := entry
	hedge.Side = schema.SideSell
	hedge.PriceType = schema.PriceTypeMarket
	hedge.Purpose = schema.PurposeHedge

	testCases := []struct {
		desc   string
		cfg    Config
		intent Intent
		state  StateView
		action Action
		reason Reason
		qty    int64
	}{
		{
			desc:   "allow within limits",
			cfg:    Config{MaxOrderQty: 10},
			intent: entry,
			state:  StateView{MaxPosition: 10, Now: now},
			action: ActionAllow,
			qty:    3,
		},
		{
			desc:   "kill switch blocks entry",
			cfg:    Config{KillSwitch: true},
			intent: entry,
			state:  StateView{Now: now},
			action: ActionDeny,
			reason: ReasonKillSwitch,
		},
		{
			desc:   "kill switch lets hedge through",
			cfg:    Config{KillSwitch: true},
			intent: hedge,
			state:  StateView{Position: 3, MaxPosition: 10, Now: now},
			action: ActionAllow,
			qty:    3,
		},
		{
			desc:   "order qty above limit",
			cfg:    Config{MaxOrderQty: 2},
			intent: entry,
			state:  StateView{Now: now},
			action: ActionDeny,
			reason: ReasonMaxQty,
		},
		{
			desc:   "price outside band",
			cfg:    Config{MaxPriceDeviationBps: 10},
			intent: entry,
			state:  StateView{ReferencePrice: decimal.NewFromInt(4900), Now: now},
			action: ActionDeny,
			reason: ReasonPriceBand,
		},
		{
			desc:   "notional above limit",
			cfg:    Config{MaxOrderNotional: decimal.NewFromInt(10000)},
			intent: entry,
			state:  StateView{Now: now},
			action: ActionDeny,
			reason: ReasonMaxNotional,
		},
		{
			desc:   "position room clamps qty",
			intent: entry,
			state:  StateView{Position: 6, WorkingSameSide: 2, MaxPosition: 10, Now: now},
			action: ActionAllow,
			qty:    2,
		},
		{
			desc:   "session limit tighter than alias",
			cfg:    Config{MaxPosition: 7},
			intent: entry,
			state:  StateView{Position: 6, MaxPosition: 10, Now: now},
			action: ActionAllow,
			qty:    1,
		},
		{
			desc:   "no position room",
			intent: entry,
			state:  StateView{Position: 8, WorkingSameSide: 2, MaxPosition: 10, Now: now},
			action: ActionDeny,
			reason: ReasonPositionLimit,
		},
		{
			desc:   "reducing order has room",
			intent: hedge,
			state:  StateView{Position: 10, MaxPosition: 10, Now: now},
			action: ActionAllow,
			qty:    3,
		},
		{
			desc:   "price level full",
			intent: entry,
			state:  StateView{OrdersAtPrice: 1, MaxOrdersPerPriceLevel: 1, Now: now},
			action: ActionDeny,
			reason: ReasonPriceLevel,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := NewEngine(tc.cfg).Evaluate(tc.intent, tc.state)
			assert.Equal(t, tc.action, got.Action)
			assert.Equal(t, tc.reason, got.Reason)
			assert.Equal(t, tc.qty, got.Qty)
		})
	}
}

func TestRateLimitSkipsHedges(t *testing.T) {
	now := time.Date(2026, 10, 2, 12, 30, 0, 0, time.UTC)
	e := NewEngine(Config{OrderRateLimit: 1, OrderRateWindow: time.Second})
	entry := Intent{Side: schema.SideBuy, PriceType: schema.PriceTypeMarket, Qty: 1, Purpose: schema.PurposeEntry}
	hedge := Intent{Side: schema.SideSell, PriceType: schema.PriceTypeMarket, Qty: 1, Purpose: schema.PurposeHedge}

	assert.True(t, e.Evaluate(entry, StateView{Now: now}).Allowed())
	got := e.Evaluate(entry, StateView{Now: now})
	assert.Equal(t, ReasonRateLimit, got.Reason)
	assert.True(t, e.Evaluate(hedge, StateView{Now: now}).Allowed())
	assert.True(t, e.Evaluate(entry, StateView{Now: now.Add(time.Second)}).Allowed())
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "position_limit", ReasonPositionLimit.String())
	assert.Equal(t, "unknown", ReasonCount.String())
}
