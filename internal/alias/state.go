// Package alias holds the per-instrument strategy state: its static
// configuration and the live flags, position and sizing counters the
// session goroutine mutates.
package alias

import (
	"math"
	"strings"
	"time"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// State is the live record of one alias. It is owned by the session goroutine.
type State struct {
	cfg Config

	IsTradable   bool
	ToListen     bool
	EntryFlag    bool
	EntryFlagAt  time.Time
	IsHedging    bool
	ManualReview bool

	NetPosition         int64
	ContractSizeToEnter int64
	ContractSizeToHedge int64
	FilledToEnter       int64
	FilledToHedge       int64
	WorkingToEnter      int64
	WorkingToHedge      int64

	HedgingDatetime time.Time
	LastOrderSentAt time.Time

	BidPrice   decimal.Decimal
	BidSize    int64
	AskPrice   decimal.Decimal
	AskSize    int64
	LastPrice  decimal.Decimal
	MarketMode string
	UpdatedAt  time.Time
}

// New validates cfg and builds the initial state.
func New(cfg Config) (*State, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Bindings = append([]string(nil), cfg.Bindings...)
	return &State{
		cfg:         cfg,
		IsTradable:  cfg.IsTradable,
		ToListen:    cfg.ToListen,
		NetPosition: cfg.InitialPosition,
	}, nil
}

func (s *State) Config() Config {
	return s.cfg
}

func (s *State) SymbolAlias() string {
	return s.cfg.SymbolAlias
}

// StartEntry raises the entry flag and loads the full entry target.
func (s *State) StartEntry(now time.Time) {
	if s.EntryFlag {
		return
	}
	s.EntryFlag = true
	s.EntryFlagAt = now
	s.ContractSizeToEnter = clamp0(s.cfg.ContractSize - s.FilledToEnter)
}

// StopEntry lowers the entry flag and forfeits any unworked target.
func (s *State) StopEntry() {
	s.EntryFlag = false
	s.ContractSizeToEnter = 0
}

// StartHedging suspends entry and stamps the hedge start.
func (s *State) StartHedging(now time.Time) {
	s.IsHedging = true
	if s.HedgingDatetime.IsZero() {
		s.HedgingDatetime = now
	}
}

// CanEnter reports whether entry orders may be generated.
func (s *State) CanEnter() bool {
	return s.EntryFlag && !s.IsHedging && s.IsTradable
}

// UpdateEntrySizing recomputes ContractSizeToEnter from the time left in the
// entry window at the configured pace. The result never grows.
func (s *State) UpdateEntrySizing(now time.Time) int64 {
	if !s.EntryFlag {
		return s.ContractSizeToEnter
	}
	next := min(s.ContractSizeToEnter, s.cfg.ContractSize-s.FilledToEnter)
	left := s.cfg.EntryPeriod - now.Sub(s.EntryFlagAt)
	if left <= 0 {
		next = 0
	} else {
		rate := float64(s.cfg.EntryMinimumContractSize) / s.cfg.EntryOrderInterval.Seconds()
		paced := int64(math.Ceil(rate * left.Seconds()))
		next = min(next, paced)
	}
	s.ContractSizeToEnter = clamp0(next)
	return s.ContractSizeToEnter
}

// PositionRemainingToEnter is the entry size not yet covered by working orders.
func (s *State) PositionRemainingToEnter() int64 {
	return clamp0(s.ContractSizeToEnter - s.WorkingToEnter)
}

// UpdateHedgeSizing recomputes ContractSizeToHedge from live exposure.
func (s *State) UpdateHedgeSizing() int64 {
	s.ContractSizeToHedge = clamp0(abs(s.NetPosition) - s.WorkingToHedge)
	return s.ContractSizeToHedge
}

// HedgeSide is the side that reduces the current position.
func (s *State) HedgeSide() schema.Side {
	switch {
	case s.NetPosition > 0:
		return schema.SideSell
	case s.NetPosition < 0:
		return schema.SideBuy
	default:
		return ""
	}
}

// PassivePrice returns the touch on the given side: bid for buys, ask for sells.
func (s *State) PassivePrice(side schema.Side) (decimal.Decimal, bool) {
	var p decimal.Decimal
	switch side {
	case schema.SideBuy:
		p = s.BidPrice
	case schema.SideSell:
		p = s.AskPrice
	}
	return p, p.IsPositive()
}

// ApplyMarket copies price fields from an update.
func (s *State) ApplyMarket(u schema.MarketUpdate) {
	switch u.Feed {
	case schema.FeedBBO:
		if !u.BidPrice.IsZero() {
			s.BidPrice, s.BidSize = u.BidPrice, u.BidSize
		}
		if !u.AskPrice.IsZero() {
			s.AskPrice, s.AskSize = u.AskPrice, u.AskSize
		}
	case schema.FeedTrade:
		s.LastPrice = u.LastPrice
	case schema.FeedMarketMode:
		s.MarketMode = u.MarketMode
		s.IsTradable = strings.EqualFold(u.MarketMode, "open")
	}
	s.UpdatedAt = u.At
}

// AdjustWorking moves the working counter of a purpose by delta.
func (s *State) AdjustWorking(purpose schema.Purpose, delta int64) {
	switch purpose {
	case schema.PurposeEntry:
		s.WorkingToEnter = clamp0(s.WorkingToEnter + delta)
	case schema.PurposeHedge:
		s.WorkingToHedge = clamp0(s.WorkingToHedge + delta)
	}
}

// ApplyFill books a fill against position and sizing counters. Working size
// is owned by the order ledger and released through AdjustWorking. The fill is
// always applied; a breach of MaxPosition is reported after the fact.
func (s *State) ApplyFill(purpose schema.Purpose, side schema.Side, qty int64) error {
	if qty <= 0 {
		return errors.Wrapf(exception.ErrInvalidFill, "alias: %s, qty: %d", s.cfg.SymbolAlias, qty)
	}
	s.NetPosition += side.Sign() * qty
	switch purpose {
	case schema.PurposeEntry:
		s.FilledToEnter += qty
		s.ContractSizeToEnter = clamp0(s.ContractSizeToEnter - qty)
	case schema.PurposeHedge:
		s.FilledToHedge += qty
		s.ContractSizeToHedge = clamp0(s.ContractSizeToHedge - qty)
	}
	if abs(s.NetPosition) > s.cfg.MaxPosition {
		return errors.Wrapf(exception.ErrPositionLimit, "alias: %s, net: %d, max: %d", s.cfg.SymbolAlias, s.NetPosition, s.cfg.MaxPosition)
	}
	return nil
}

// View is a read-only copy of the state.
type View struct {
	SymbolAlias         string          `json:"symbolAlias"`
	Symbol              string          `json:"symbol"`
	Action              string          `json:"action"`
	IsTradable          bool            `json:"isTradable"`
	ToListen            bool            `json:"toListen"`
	EntryFlag           bool            `json:"entryFlag"`
	IsHedging           bool            `json:"isHedging"`
	ManualReview        bool            `json:"manualReview"`
	NetPosition         int64           `json:"netPosition"`
	ContractSizeToEnter int64           `json:"contractSizeToEnter"`
	ContractSizeToHedge int64           `json:"contractSizeToHedge"`
	WorkingToEnter      int64           `json:"workingToEnter"`
	WorkingToHedge      int64           `json:"workingToHedge"`
	HedgingDatetime     time.Time       `json:"hedgingDatetime"`
	LastPrice           decimal.Decimal `json:"lastPrice"`
}

func (s *State) View() View {
	return View{
		SymbolAlias:         s.cfg.SymbolAlias,
		Symbol:              s.cfg.Symbol,
		Action:              string(s.cfg.Action),
		IsTradable:          s.IsTradable,
		ToListen:            s.ToListen,
		EntryFlag:           s.EntryFlag,
		IsHedging:           s.IsHedging,
		ManualReview:        s.ManualReview,
		NetPosition:         s.NetPosition,
		ContractSizeToEnter: s.ContractSizeToEnter,
		ContractSizeToHedge: s.ContractSizeToHedge,
		WorkingToEnter:      s.WorkingToEnter,
		WorkingToHedge:      s.WorkingToHedge,
		HedgingDatetime:     s.HedgingDatetime,
		LastPrice:           s.LastPrice,
	}
}

func clamp0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
