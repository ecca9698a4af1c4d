package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for buy, -1 for sell and 0 otherwise.
func (s Side) Sign() int64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Opposite returns the offsetting side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return s
	}
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// PriceType selects passive or marketable execution.
type PriceType string

const (
	PriceTypeLimit  PriceType = "limit"
	PriceTypeMarket PriceType = "market"
)

func (p PriceType) Valid() bool {
	return p == PriceTypeLimit || p == PriceTypeMarket
}

// Purpose tags an order with the strategy leg that produced it.
type Purpose string

const (
	PurposeEntry Purpose = "entry"
	PurposeHedge Purpose = "hedge"
)

// RequestKind is the kind of request last sent for an order.
type RequestKind string

const (
	RequestNew    RequestKind = "new"
	RequestModify RequestKind = "modify"
	RequestCancel RequestKind = "cancel"
)

// AliasAction is what an alias does when its timeline starts.
type AliasAction string

const (
	AliasActionEnter AliasAction = "enter"
	AliasActionHedge AliasAction = "hedge"
)

func (a AliasAction) Valid() bool {
	return a == AliasActionEnter || a == AliasActionHedge
}

// MarketFeed is the routing kind of a market data message.
type MarketFeed string

const (
	FeedBBO        MarketFeed = "bbo"
	FeedTrade      MarketFeed = "trade"
	FeedMarketMode MarketFeed = "market_mode"
	FeedEndOfDay   MarketFeed = "end_of_day"
)

// MarketUpdate carries price fields for one alias.
type MarketUpdate struct {
	SymbolAlias string          `json:"symbolAlias"`
	Symbol      string          `json:"symbol"`
	Feed        MarketFeed      `json:"feed"`
	BidPrice    decimal.Decimal `json:"bidPrice"`
	BidSize     int64           `json:"bidSize"`
	AskPrice    decimal.Decimal `json:"askPrice"`
	AskSize     int64           `json:"askSize"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	LastSize    int64           `json:"lastSize"`
	MarketMode  string          `json:"marketMode,omitempty"`
	At          time.Time       `json:"at"`
}

// OrderRequest is an egress request handed to the gateway.
type OrderRequest struct {
	Kind        RequestKind     `json:"kind"`
	InternalID  string          `json:"internalId"`
	SymbolAlias string          `json:"symbolAlias"`
	Symbol      string          `json:"symbol"`
	Exchange    string          `json:"exchange"`
	Side        Side            `json:"side"`
	PriceType   PriceType       `json:"priceType"`
	Price       decimal.Decimal `json:"price"`
	Qty         int64           `json:"qty"`
	Purpose     Purpose         `json:"purpose"`
	At          time.Time       `json:"at"`
}

// OrderEvent is one exchange-protocol lifecycle event for an internal id.
type OrderEvent struct {
	Kind        OrderEventKind  `json:"kind"`
	InternalID  string          `json:"internalId"`
	SymbolAlias string          `json:"symbolAlias"`
	FillID      string          `json:"fillId,omitempty"`
	FillQty     int64           `json:"fillQty,omitempty"`
	FillPrice   decimal.Decimal `json:"fillPrice"`
	CumQty      int64           `json:"cumQty,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	At          time.Time       `json:"at"`
}

// TriggerKind names a calendar or operator trigger.
type TriggerKind string

const (
	TriggerEnter    TriggerKind = "enter"
	TriggerHedge    TriggerKind = "hedge"
	TriggerEndOfDay TriggerKind = "end_of_day"
)

// Trigger is a calendar or manual instruction for one alias, or all aliases when SymbolAlias is empty.
type Trigger struct {
	Kind        TriggerKind `json:"kind"`
	SymbolAlias string      `json:"symbolAlias,omitempty"`
	At          time.Time   `json:"at"`
}
