package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// Metrics exports telemetry events as Prometheus counters and latency
// histograms. A nil registerer disables the backend; Record becomes a
// no-op rather than an error.
type Metrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Passing nil yields a
// disabled backend.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sprint_telemetry_events_total",
			Help: "Telemetry events by type, agent and success.",
		}, []string{"type", "agent", "success"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sprint_agent_latency_seconds",
			Help:    "Agent invocation latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"agent"}),
	}
	reg.MustRegister(m.events, m.latency)
	return m
}

// Name implements Backend.
func (m *Metrics) Name() string { return "metrics" }

// Record implements Backend.
func (m *Metrics) Record(event domain.TelemetryEvent) error {
	if m.events == nil {
		return nil
	}
	success := "false"
	if event.Success {
		success = "true"
	}
	m.events.WithLabelValues(string(event.Type), event.AgentName, success).Inc()
	if event.LatencyMs > 0 && event.AgentName != "" {
		m.latency.WithLabelValues(event.AgentName).Observe(float64(event.LatencyMs) / 1000)
	}
	return nil
}

// Flush implements Backend; counters need no draining.
func (m *Metrics) Flush() error { return nil }
