package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventtrader"

// Collector exposes a Metrics snapshot in Prometheus exposition format.
type Collector struct {
	metrics *Metrics

	events      *prometheus.Desc
	orderKinds  *prometheus.Desc
	riskReasons *prometheus.Desc
	errors      *prometheus.Desc
	submitted   *prometheus.Desc
	transitions *prometheus.Desc
	duplicates  *prometheus.Desc
	failures    *prometheus.Desc
	escalations *prometheus.Desc
	queueDrops  *prometheus.Desc
	latencyAvg  *prometheus.Desc
	latencyMax  *prometheus.Desc
}

func NewCollector(m *Metrics) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		metrics:     m,
		events:      desc("inbound_events_total", "Inbound session events by type.", "type"),
		orderKinds:  desc("order_events_total", "Applied order lifecycle events by kind.", "kind"),
		riskReasons: desc("risk_denials_total", "Risk denials by reason.", "reason"),
		errors:      desc("errors_total", "Errors by taxonomy class.", "class"),
		submitted:   desc("orders_submitted_total", "Orders handed to the gateway."),
		transitions: desc("order_transitions_total", "Order events that changed state."),
		duplicates:  desc("order_duplicates_total", "Order events that were idempotent no-ops."),
		failures:    desc("action_failures_total", "Scheduled actions that failed."),
		escalations: desc("hedge_escalations_total", "Hedge sequences escalated to an operator."),
		queueDrops:  desc("queue_drops_total", "Inbound events dropped on a full queue."),
		latencyAvg:  desc("latency_avg_seconds", "Average latency by stage.", "stage"),
		latencyMax:  desc("latency_max_seconds", "Maximum latency by stage.", "stage"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.events, c.orderKinds, c.riskReasons, c.errors, c.submitted, c.transitions,
		c.duplicates, c.failures, c.escalations, c.queueDrops, c.latencyAvg, c.latencyMax,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	for t, v := range snap.EventCounts {
		counter(c.events, v, t.String())
	}
	for k, v := range snap.OrderKindCounts {
		counter(c.orderKinds, v, k.String())
	}
	for r, v := range snap.RiskReasonCounts {
		counter(c.riskReasons, v, r.String())
	}
	for class, v := range snap.ErrorCounts {
		counter(c.errors, v, string(class))
	}
	counter(c.submitted, snap.OrdersSubmitted)
	counter(c.transitions, snap.Transitions)
	counter(c.duplicates, snap.Duplicates)
	counter(c.failures, snap.ActionFailures)
	counter(c.escalations, snap.Escalations)
	counter(c.queueDrops, snap.QueueDrops)

	for stage, l := range map[string]LatencySnapshot{
		"event":      snap.EventLatency,
		"order_flow": snap.OrderFlowLatency,
		"risk_eval":  snap.RiskEvalLatency,
		"dispatch":   snap.DispatchLatency,
	} {
		if l.Count == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, l.Avg.Seconds(), stage)
		ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, l.Max.Seconds(), stage)
	}
}
