package strategy

import (
	"eventtrader/internal/scheduler"
)

// Mode selects which timelines a session runs.
type Mode string

const (
	ModeCombined  Mode = "combined"
	ModeEntryOnly Mode = "entry-only"
	ModeHedgeOnly Mode = "hedge-only"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeCombined, ModeEntryOnly, ModeHedgeOnly:
		return true
	default:
		return false
	}
}

func (m Mode) enters() bool {
	return m == ModeCombined || m == ModeEntryOnly
}

func (m Mode) hedges() bool {
	return m == ModeCombined || m == ModeHedgeOnly
}

const (
	ActionEnter      scheduler.Action = "entry.start"
	ActionEndEntry   scheduler.Action = "entry.end"
	ActionSessionEnd scheduler.Action = "session.end"

	PriorityEntry      = 20
	PrioritySessionEnd = 90
)
