package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	CompletionRequests *prometheus.CounterVec
	CompletionLatency  *prometheus.HistogramVec
	ProviderErrors     *prometheus.CounterVec
	DiaryWrites        *prometheus.CounterVec

	latency *latencyWindow
}

// NewMetrics registers the instruments under namespace. targets overrides
// DefaultLatencyTargets per stage and may be nil.
func NewMetrics(namespace string, targets map[Stage]time.Duration) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active diary chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CompletionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Completion gateway calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CompletionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion gateway latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"kind"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		DiaryWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diary_writes_total",
			Help:      "Diary entry writes by source and outcome.",
		}, []string{"source", "outcome"}),
		latency: newLatencyWindow(256, targets),
	}
}

// ObserveCompletion records one gateway call in both Prometheus and the
// rolling stage window.
func (m *Metrics) ObserveCompletion(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionRequests.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" {
		m.CompletionLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
		m.latency.record(CompletionStage(kind), d)
	}
}

func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.record(stage, d)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.latency.count(name)
}

func (m *Metrics) ProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) DiaryWrite(source, outcome string) {
	if m == nil {
		return
	}
	m.DiaryWrites.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.latency.snapshot(time.Now())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
