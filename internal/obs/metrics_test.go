package obs

import (
	"strings"
	"testing"
	"time"

	"eventtrader/internal/risk"
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(schema.EventHeader{Type: schema.EventMarketData, TsEvent: 100, TsRecv: 300})
	m.ObserveEvent(schema.EventHeader{Type: schema.EventMarketData})
	m.ObserveTransition(schema.OrderFill, true)
	m.ObserveTransition(schema.OrderFill, false)
	m.IncRiskReason(risk.ReasonKillSwitch)
	m.IncError(errors.Wrap(exception.ErrUnknownOrder, "id: x"))
	m.IncError(errors.Wrap(exception.ErrHedgeEscalation, "alias: ES"))
	m.IncOrderSubmitted()
	m.ObserveOrderFlow(2 * time.Millisecond)
	m.ObserveOrderFlow(4 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.EventCounts[schema.EventMarketData])
	assert.Equal(t, uint64(1), snap.EventLatency.Count)
	assert.Equal(t, uint64(2), snap.OrderKindCounts[schema.OrderFill])
	assert.Equal(t, uint64(1), snap.Transitions)
	assert.Equal(t, uint64(1), snap.Duplicates)
	assert.Equal(t, uint64(1), snap.RiskReasonCounts[risk.ReasonKillSwitch])
	assert.Equal(t, uint64(1), snap.ErrorCounts[exception.ClassUnknownOrder])
	assert.Equal(t, uint64(1), snap.Escalations)
	assert.Equal(t, uint64(1), snap.OrdersSubmitted)
	assert.Equal(t, 2*time.Millisecond, snap.OrderFlowLatency.Min)
	assert.Equal(t, 4*time.Millisecond, snap.OrderFlowLatency.Max)
	assert.Equal(t, 3*time.Millisecond, snap.OrderFlowLatency.Avg)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(schema.EventHeader{Type: schema.EventTrigger})
	m.IncError(exception.ErrInternal)
	m.IncQueueDrop()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestCollector(t *testing.T) {
	m := NewMetrics()
	m.IncOrderSubmitted()
	m.IncQueueDrop()
	m.IncRiskReason(risk.ReasonRateLimit)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(m)))

	expected := `
# HELP eventtrader_orders_submitted_total Orders handed to the gateway.
# TYPE eventtrader_orders_submitted_total counter
eventtrader_orders_submitted_total 1
# HELP eventtrader_risk_denials_total Risk denials by reason.
# TYPE eventtrader_risk_denials_total counter
eventtrader_risk_denials_total{reason="rate_limit"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"eventtrader_orders_submitted_total", "eventtrader_risk_denials_total"))
}
