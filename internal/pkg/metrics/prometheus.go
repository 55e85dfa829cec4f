package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Health check metrics
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sams",
			Subsystem: "checks",
			Name:      "total",
			Help:      "Total number of completed health checks",
		},
		[]string{"method", "result"},
	)

	checkLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sams",
			Subsystem: "checks",
			Name:      "latency_seconds",
			Help:      "Probe latency in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	targetsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sams",
			Subsystem: "targets",
			Name:      "state_count",
			Help:      "Number of targets per reachability state",
		},
		[]string{"state"},
	)

	// Alert engine metrics
	alertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sams",
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts created",
		},
		[]string{"severity", "state"},
	)

	activeAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sams",
			Subsystem: "alerts",
			Name:      "active_count",
			Help:      "Number of live (open/acknowledged/escalated) alerts",
		},
		[]string{"severity"},
	)

	dedupSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sams",
			Subsystem: "alerts",
			Name:      "dedup_suppressed_total",
			Help:      "Drafts dropped because a live alert already covered the rule and target",
		},
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sams",
			Subsystem: "escalation",
			Name:      "total",
			Help:      "Total escalation level advances",
		},
		[]string{"severity"},
	)

	correlationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sams",
			Subsystem: "correlation",
			Name:      "grouped_total",
			Help:      "Alerts attached to a correlation group",
		},
	)
)

// RecordCheck records a completed health check cycle.
func RecordCheck(method string, success bool, latency time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	checksTotal.WithLabelValues(method, result).Inc()
	checkLatency.WithLabelValues(method).Observe(latency.Seconds())
}

// SetTargetStates updates the per-state target gauges.
func SetTargetStates(counts map[string]int) {
	for state, n := range counts {
		targetsByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordAlertCreated records a newly created alert.
func RecordAlertCreated(severity, state string) {
	alertsCreatedTotal.WithLabelValues(severity, state).Inc()
}

// SetActiveAlerts updates the live alert gauge for a severity.
func SetActiveAlerts(severity string, n int) {
	activeAlerts.WithLabelValues(severity).Set(float64(n))
}

// RecordDedupSuppressed records a draft dropped by the dedup invariant.
func RecordDedupSuppressed() {
	dedupSuppressedTotal.Inc()
}

// RecordEscalation records an escalation advance.
func RecordEscalation(severity string) {
	escalationsTotal.WithLabelValues(severity).Inc()
}

// RecordCorrelation records an alert joining a group.
func RecordCorrelation() {
	correlationsTotal.Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router returns a chi router exposing /metrics and /healthz.
func Router() chi.Router {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
