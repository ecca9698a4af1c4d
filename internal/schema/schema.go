package schema

import "time"

// SchemaVersion is the current journal record version.
const SchemaVersion uint16 = 1

// EventType defines the category of an inbound session event.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketData
	EventOrderEvent
	EventTrigger
	EventControl
	EventScheduled
)

var eventTypeNames = [...]string{
	EventUnknown:    "unknown",
	EventMarketData: "market_data",
	EventOrderEvent: "order_event",
	EventTrigger:    "trigger",
	EventControl:    "control",
	EventScheduled:  "scheduled",
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

// EventHeader is the common metadata attached to every inbound event.
type EventHeader struct {
	Type    EventType
	Seq     uint64
	TsEvent int64
	TsRecv  int64
}

// NewHeader stamps an inbound event with its receive time.
func NewHeader(eventType EventType, seq uint64, tsEvent time.Time) EventHeader {
	h := EventHeader{
		Type:   eventType,
		Seq:    seq,
		TsRecv: time.Now().UTC().UnixNano(),
	}
	if !tsEvent.IsZero() {
		h.TsEvent = tsEvent.UnixNano()
	}
	return h
}
