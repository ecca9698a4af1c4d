package strategy

import (
	"context"

	"eventtrader/internal/journal"
	"eventtrader/internal/notify"
	"eventtrader/internal/schema"

	"github.com/yanun0323/logs"
)

// Journal accepts audit entries without blocking.
type Journal interface {
	TryAppend(e journal.Entry) error
}

// auditNotifier journals every alert before forwarding it.
type auditNotifier struct {
	next    notify.Notifier
	journal Journal
	session string
}

func (n auditNotifier) Notify(ctx context.Context, a notify.Alert) {
	if a.Session == "" {
		a.Session = n.session
	}
	if n.journal != nil {
		err := n.journal.TryAppend(journal.Entry{
			Version:     schema.SchemaVersion,
			Session:     a.Session,
			Kind:        journal.EntryAlert,
			SymbolAlias: a.SymbolAlias,
			State:       string(a.Level),
			Reason:      a.Title + ": " + a.Message,
			RecordedAt:  a.At,
		})
		if err != nil {
			logs.Warnf("journal alert %s, err: %+v", a.Title, err)
		}
	}
	if n.next != nil {
		n.next.Notify(ctx, a)
	}
}
