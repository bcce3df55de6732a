// Package observability holds the process metrics and tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call"

// Metrics records orchestration activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsEnded     *prometheus.CounterVec
	Turns             *prometheus.CounterVec
	ToolInvocations   *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	SummaryFailures   prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held by the registry.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions created.",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions finalized, by terminal status.",
		}, []string{"status"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns appended, by role.",
		}, []string{"role"}),
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations, by tool kind and result.",
		}, []string{"kind", "result"}),
		GenerationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of one generation pass.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"purpose"}),
		SummaryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_failures_total",
			Help:      "Finalizations that recorded a placeholder summary.",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) SessionEnded(status string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(status).Inc()
}

func (m *Metrics) TurnAppended(role string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(role).Inc()
}

func (m *Metrics) ToolInvoked(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ToolInvocations.WithLabelValues(kind, result).Inc()
}

// ObserveGeneration records a pass; purpose is "reply", "continuation" or
// "summary".
func (m *Metrics) ObserveGeneration(purpose string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationLatency.WithLabelValues(purpose).Observe(d.Seconds())
}

func (m *Metrics) SummaryFailed() {
	if m == nil {
		return
	}
	m.SummaryFailures.Inc()
}
