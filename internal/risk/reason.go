package risk

// Action is the verdict of a risk check.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonPriceBand
	ReasonMaxNotional
	ReasonPositionLimit
	ReasonPriceLevel

	ReasonCount
)

var reasonNames = [...]string{
	ReasonNone:          "none",
	ReasonKillSwitch:    "kill_switch",
	ReasonRateLimit:     "rate_limit",
	ReasonMaxQty:        "max_qty",
	ReasonPriceBand:     "price_band",
	ReasonMaxNotional:   "max_notional",
	ReasonPositionLimit: "position_limit",
	ReasonPriceLevel:    "price_level",
}

func (r Reason) String() string {
	if r < ReasonCount {
		return reasonNames[r]
	}
	return "unknown"
}
