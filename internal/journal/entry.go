// Package journal keeps an audit trail of finished orders and operator alerts.
// Entries are produced on the session goroutine and persisted by a background
// writer so storage latency never reaches the event loop.
package journal

import (
	"time"

	"eventtrader/internal/og"
	"eventtrader/internal/schema"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryOrder    EntryKind = "order"
	EntryRejected EntryKind = "rejected"
	EntryDropped  EntryKind = "dropped"
	EntryAlert    EntryKind = "alert"
)

// Entry is one journal row.
type Entry struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id,omitempty"`
	Version     uint16          `json:"version"`
	Session     string          `gorm:"index;size:64" json:"session"`
	Kind        EntryKind       `gorm:"size:16" json:"kind"`
	InternalID  string          `gorm:"index;size:64" json:"internalId,omitempty"`
	SymbolAlias string          `gorm:"size:64" json:"symbolAlias,omitempty"`
	Symbol      string          `gorm:"size:64" json:"symbol,omitempty"`
	Side        string          `gorm:"size:8" json:"side,omitempty"`
	PriceType   string          `gorm:"size:8" json:"priceType,omitempty"`
	Purpose     string          `gorm:"size:8" json:"purpose,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric" json:"price"`
	Qty         int64           `json:"qty"`
	FilledQty   int64           `json:"filledQty"`
	State       string          `gorm:"size:32" json:"state,omitempty"`
	Cancelled   bool            `json:"cancelled"`
	Reason      string          `json:"reason,omitempty"`
	Transitions string          `gorm:"type:text" json:"transitions,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	RecordedAt  time.Time       `json:"recordedAt"`
}

func (Entry) TableName() string {
	return "order_journal"
}

type stampView struct {
	Kind    string    `json:"kind"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Changed bool      `json:"changed"`
	At      time.Time `json:"at"`
}

// FromRecord builds the journal row of an order record.
func FromRecord(session string, kind EntryKind, r *og.Record, at time.Time) Entry {
	stamps := make([]stampView, 0, len(r.Transitions))
	for _, s := range r.Transitions {
		stamps = append(stamps, stampView{
			Kind:    s.Kind.String(),
			From:    s.From.String(),
			To:      s.To.String(),
			Changed: s.Changed,
			At:      s.At,
		})
	}
	transitions, _ := json.Marshal(stamps)

	return Entry{
		Version:     schema.SchemaVersion,
		Session:     session,
		Kind:        kind,
		InternalID:  r.InternalID,
		SymbolAlias: r.SymbolAlias,
		Symbol:      r.Symbol,
		Side:        string(r.Side),
		PriceType:   string(r.PriceType),
		Purpose:     string(r.Purpose),
		Price:       r.Price,
		Qty:         r.Qty,
		FilledQty:   r.FilledQty,
		State:       r.State.String(),
		Cancelled:   r.Cancelled,
		Reason:      r.Reason,
		Transitions: string(transitions),
		CreatedAt:   r.CreatedAt,
		RecordedAt:  at,
	}
}
