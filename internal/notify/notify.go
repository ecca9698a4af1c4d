// Package notify delivers operator alerts. Notify never blocks the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is one operator notification.
type Alert struct {
	Level       Level             `json:"level"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Session     string            `json:"session,omitempty"`
	SymbolAlias string            `json:"symbolAlias,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	At          time.Time         `json:"at"`
}

// Notifier is the alert sink.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, a Alert) {
	switch a.Level {
	case LevelCritical:
		logs.Errorf("alert [%s] %s: %s, alias: %s, session: %s", a.Level, a.Title, a.Message, a.SymbolAlias, a.Session)
	case LevelWarning:
		logs.Warnf("alert [%s] %s: %s, alias: %s, session: %s", a.Level, a.Title, a.Message, a.SymbolAlias, a.Session)
	default:
		logs.Infof("alert [%s] %s: %s, alias: %s, session: %s", a.Level, a.Title, a.Message, a.SymbolAlias, a.Session)
	}
}

// Multi fans an alert out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, a)
		}
	}
}

// Recorder keeps alerts in memory. Tests and dry runs read them back.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Notify(_ context.Context, a Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}
