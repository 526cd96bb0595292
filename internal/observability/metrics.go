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
	ActiveGoals        prometheus.Gauge
	ActionsTotal       *prometheus.CounterVec
	GoalEvents         *prometheus.CounterVec
	OracleErrors       *prometheus.CounterVec
	SessionsMaintained *prometheus.CounterVec
	ActionLatency      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveGoals: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_goals",
			Help:      "Number of active, unfinished goals.",
		}),
		ActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Executed actions by type and outcome.",
		}, []string{"type", "outcome"}),
		GoalEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_events_total",
			Help:      "Goal registry events by type.",
		}, []string{"event"}),
		OracleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_errors_total",
			Help:      "Oracle errors by oracle and code.",
		}, []string{"oracle", "code"}),
		SessionsMaintained: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_maintained_total",
			Help:      "Scheduled sessions created and purged by the maintainer.",
		}, []string{"op"}),
		ActionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_ms",
			Help:      "Action execution latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}

func (m *Metrics) ObserveActionLatency(d time.Duration) {
	m.ActionLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
