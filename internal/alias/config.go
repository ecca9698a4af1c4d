package alias

import (
	"time"

	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	DefaultEntryOrderInterval       = 2 * time.Second
	DefaultEntryMinimumContractSize = 1
	DefaultEntryPeriod              = time.Minute
	DefaultHedgePeriod              = time.Minute
	DefaultHedgeOrderInterval       = 2 * time.Second
	DefaultHedgeMinimumContractSize = 1
	DefaultMinimumHedgeAttempt      = 1
	DefaultMaxOrderSize             = 30
	DefaultMaxOrdersPerPriceLevel   = 1
)

// Config is the static part of an alias. It is immutable once the state is built.
type Config struct {
	SymbolAlias string
	Symbol      string
	Exchange    string
	Action      schema.AliasAction
	SideToEnter schema.Side

	// ContractSize is the total entry target.
	ContractSize             int64
	EntryStart               time.Time
	EntryPeriod              time.Duration
	EntryOrderInterval       time.Duration
	EntryMinimumContractSize int64

	HedgeStart               time.Time
	HedgePeriod              time.Duration
	HedgeOrderInterval       time.Duration
	HedgeMinimumContractSize int64
	MinimumHedgeAttempt      int
	HedgePriceType           schema.PriceType

	MaxPosition            int64
	MaxOrderSize           int64
	MaxOrdersPerPriceLevel int

	InitialPosition int64
	ToListen        bool
	IsTradable      bool
	Bindings        []string
}

// WithDefaults fills unset tuning fields.
func (c Config) WithDefaults() Config {
	if c.EntryOrderInterval <= 0 {
		c.EntryOrderInterval = DefaultEntryOrderInterval
	}
	if c.EntryMinimumContractSize <= 0 {
		c.EntryMinimumContractSize = DefaultEntryMinimumContractSize
	}
	if c.EntryPeriod <= 0 {
		c.EntryPeriod = DefaultEntryPeriod
	}
	if c.HedgePeriod <= 0 {
		c.HedgePeriod = DefaultHedgePeriod
	}
	if c.HedgeOrderInterval <= 0 {
		c.HedgeOrderInterval = DefaultHedgeOrderInterval
	}
	if c.HedgeMinimumContractSize <= 0 {
		c.HedgeMinimumContractSize = DefaultHedgeMinimumContractSize
	}
	if c.MinimumHedgeAttempt <= 0 {
		c.MinimumHedgeAttempt = DefaultMinimumHedgeAttempt
	}
	if c.HedgePriceType == "" {
		c.HedgePriceType = schema.PriceTypeLimit
	}
	if c.MaxOrderSize <= 0 {
		c.MaxOrderSize = DefaultMaxOrderSize
	}
	if c.MaxOrdersPerPriceLevel <= 0 {
		c.MaxOrdersPerPriceLevel = DefaultMaxOrdersPerPriceLevel
	}
	return c
}

// Validate reports the first malformed field as a configuration error.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return errors.Wrapf(exception.ErrConfiguration, "alias %q: "+format, append([]any{c.SymbolAlias}, args...)...)
	}
	if c.SymbolAlias == "" {
		return fail("symbolAlias is empty")
	}
	if c.Symbol == "" {
		return fail("symbol is empty")
	}
	if !c.Action.Valid() {
		return fail("action %q must be enter or hedge", c.Action)
	}
	if c.MaxPosition <= 0 {
		return fail("maxPosition must be > 0")
	}
	if abs(c.InitialPosition) > c.MaxPosition {
		return fail("initialPosition %d exceeds maxPosition %d", c.InitialPosition, c.MaxPosition)
	}
	if !c.HedgePriceType.Valid() {
		return fail("hedgePriceType %q must be limit or market", c.HedgePriceType)
	}
	switch c.Action {
	case schema.AliasActionEnter:
		if !c.SideToEnter.Valid() {
			return fail("sideToEnter %q must be buy or sell", c.SideToEnter)
		}
		if c.ContractSize <= 0 {
			return fail("contractSize must be > 0")
		}
		if abs(c.InitialPosition)+c.ContractSize > c.MaxPosition {
			return fail("contractSize %d with initialPosition %d exceeds maxPosition %d", c.ContractSize, c.InitialPosition, c.MaxPosition)
		}
		if c.EntryStart.IsZero() {
			return fail("entryStart is empty")
		}
	case schema.AliasActionHedge:
		if c.HedgeStart.IsZero() {
			return fail("hedgeStart is empty")
		}
	}
	if !c.HedgeStart.IsZero() {
		last := time.Duration(c.MinimumHedgeAttempt-1) * c.HedgeOrderInterval
		if last >= c.HedgePeriod {
			return fail("%d attempts spaced %s do not fit in hedgePeriod %s", c.MinimumHedgeAttempt, c.HedgeOrderInterval, c.HedgePeriod)
		}
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
