package risk

import (
	"time"

	"eventtrader/internal/schema"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Config defines session-wide risk limits. Per-alias limits travel in StateView.
type Config struct {
	Version              uint16          `json:"version" yaml:"version"`
	KillSwitch           bool            `json:"killSwitch" yaml:"killSwitch"`
	MaxOrderQty          int64           `json:"maxOrderQty" yaml:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional" yaml:"maxOrderNotional"`
	MaxPosition          int64           `json:"maxPosition" yaml:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit" yaml:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow" yaml:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps" yaml:"maxPriceDeviationBps"`
}

// Intent is an order the strategy wants to submit.
type Intent struct {
	SymbolAlias string
	Side        schema.Side
	PriceType   schema.PriceType
	Price       decimal.Decimal
	Qty         int64
	Purpose     schema.Purpose
}

// StateView provides the alias snapshot the checks run against.
type StateView struct {
	Position               int64
	WorkingSameSide        int64
	OrdersAtPrice          int
	MaxPosition            int64
	MaxOrdersPerPriceLevel int
	ReferencePrice         decimal.Decimal
	Now                    time.Time
}

// Decision is the verdict for one intent. Qty may be lower than requested
// when the position limit leaves room for part of the order.
type Decision struct {
	Action  Action
	Reason  Reason
	Qty     int64
	Version uint16
}

func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Engine evaluates risk decisions.
type Engine struct {
	cfg     Config
	limiter *rate.Limiter
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	e := &Engine{cfg: cfg}
	if cfg.OrderRateLimit > 0 && cfg.OrderRateWindow > 0 {
		every := rate.Limit(float64(cfg.OrderRateLimit) / cfg.OrderRateWindow.Seconds())
		e.limiter = rate.NewLimiter(every, cfg.OrderRateLimit)
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate applies the checks to an intent. Hedges skip the kill switch and
// the order rate limit so exposure can always be reduced.
func (e *Engine) Evaluate(intent Intent, state StateView) Decision {
	decision := Decision{
		Action:  ActionAllow,
		Reason:  ReasonNone,
		Qty:     intent.Qty,
		Version: e.cfg.Version,
	}
	deny := func(reason Reason) Decision {
		decision.Action = ActionDeny
		decision.Reason = reason
		decision.Qty = 0
		return decision
	}

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}
	hedge := intent.Purpose == schema.PurposeHedge

	if e.cfg.KillSwitch && !hedge {
		return deny(ReasonKillSwitch)
	}

	if intent.Qty <= 0 {
		return deny(ReasonMaxQty)
	}
	if e.cfg.MaxOrderQty > 0 && intent.Qty > e.cfg.MaxOrderQty {
		return deny(ReasonMaxQty)
	}

	limit := intent.PriceType == schema.PriceTypeLimit
	if limit && e.cfg.MaxPriceDeviationBps > 0 && state.ReferencePrice.IsPositive() {
		diff := intent.Price.Sub(state.ReferencePrice).Abs()
		band := state.ReferencePrice.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps)).Div(decimal.NewFromInt(10000))
		if diff.GreaterThan(band) {
			return deny(ReasonPriceBand)
		}
	}

	if limit && e.cfg.MaxOrderNotional.IsPositive() {
		notional := intent.Price.Mul(decimal.NewFromInt(intent.Qty)).Abs()
		if notional.GreaterThan(e.cfg.MaxOrderNotional) {
			return deny(ReasonMaxNotional)
		}
	}

	if maxPos := positionLimit(e.cfg.MaxPosition, state.MaxPosition); maxPos > 0 {
		room := maxPos - intent.Side.Sign()*state.Position - state.WorkingSameSide
		if room <= 0 {
			return deny(ReasonPositionLimit)
		}
		if decision.Qty > room {
			decision.Qty = room
		}
	}

	if limit && state.MaxOrdersPerPriceLevel > 0 && state.OrdersAtPrice >= state.MaxOrdersPerPriceLevel {
		return deny(ReasonPriceLevel)
	}

	if !hedge && e.limiter != nil && !e.limiter.AllowN(now, 1) {
		return deny(ReasonRateLimit)
	}

	return decision
}

// positionLimit returns the tighter of two limits, ignoring unset ones.
func positionLimit(session, alias int64) int64 {
	switch {
	case session <= 0:
		return alias
	case alias <= 0:
		return session
	default:
		return min(session, alias)
	}
}
