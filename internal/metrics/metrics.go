// Package metrics exposes the core's Prometheus counters and gauges:
// turn counts, tool-call counts, and bus/queue depth, mounted at
// /metrics by the server. ActiveSessions, HumanQueueDepth and
// TurnDurationSeconds are registered but nothing in the core updates
// them, so they report zero; BusSubscriberCount is set when a
// WebSocket client connects.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector one environment registers.
type Metrics struct {
	Registry *prometheus.Registry

	TurnsTotal          prometheus.Counter
	ToolCallsTotal      *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	HumanQueueDepth     prometheus.Gauge
	BusSubscriberCount  prometheus.Gauge
	DelegationsTotal    prometheus.Counter
	TurnDurationSeconds prometheus.Histogram
}

// New builds and registers a fresh Metrics bundle on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptobjects_turns_total",
			Help: "Total number of PO engine turns executed.",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptobjects_tool_calls_total",
			Help: "Total number of tool calls dispatched, by capability name.",
		}, []string{"capability"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptobjects_active_sessions",
			Help: "Number of sessions with at least one live bus subscriber.",
		}),
		HumanQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptobjects_human_queue_depth",
			Help: "Number of pending ask_human requests.",
		}),
		BusSubscriberCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptobjects_bus_subscribers",
			Help: "Number of live bus subscribers across all sessions.",
		}),
		DelegationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptobjects_delegations_total",
			Help: "Total number of PO-to-PO delegations.",
		}),
		TurnDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptobjects_turn_duration_seconds",
			Help:    "Wall-clock duration of a single PO engine turn.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.TurnsTotal, m.ToolCallsTotal, m.ActiveSessions, m.HumanQueueDepth,
		m.BusSubscriberCount, m.DelegationsTotal, m.TurnDurationSeconds,
	)
	return m
}
