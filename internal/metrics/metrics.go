// Package metrics exposes the Prometheus collectors shared by the streaming core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bunradio_circuit_breaker_state",
		Help: "Circuit breaker state by upstream (1 for the active state, 0 otherwise)",
	}, []string{"upstream", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_circuit_breaker_trips_total",
		Help: "Transitions to the open state per upstream",
	}, []string{"upstream"})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_upstream_fetch_total",
		Help: "Upstream fetch attempts by outcome (success, timeout, error, rejected)",
	}, []string{"upstream", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bunradio_upstream_fetch_duration_seconds",
		Help:    "Latency of successful upstream fetch attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	healthErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_health_errors_total",
		Help: "Health check detections by error kind",
	}, []string{"kind"})

	healthActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_health_teardowns_total",
		Help: "Teardowns triggered by the health monitor by error kind",
	}, []string{"kind"})

	recoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_recovery_attempts_total",
		Help: "Stream recovery attempts by result",
	}, []string{"result"})

	transcoderStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bunradio_transcoder_starts_total",
		Help: "Transcoder processes started",
	})

	transcoderTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bunradio_transcoder_terminations_total",
		Help: "Transcoder terminations by method (graceful, forced, gone, failed)",
	}, []string{"method"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bunradio_active_sessions",
		Help: "Sessions currently playing a station",
	})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active breaker state for an upstream.
func SetCircuitBreakerState(upstream, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(upstream, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(upstream string) {
	circuitBreakerTrips.WithLabelValues(upstream).Inc()
}

func RecordFetch(upstream, outcome string) {
	fetchTotal.WithLabelValues(upstream, outcome).Inc()
}

func ObserveFetchLatency(upstream string, d time.Duration) {
	fetchDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

func RecordHealthError(kind string) {
	healthErrors.WithLabelValues(kind).Inc()
}

func RecordHealthTeardown(kind string) {
	healthActions.WithLabelValues(kind).Inc()
}

func RecordRecoveryAttempt(result string) {
	recoveryAttempts.WithLabelValues(result).Inc()
}

func RecordTranscoderStart() {
	transcoderStarts.Inc()
}

func RecordTranscoderTermination(method string) {
	transcoderTerminations.WithLabelValues(method).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
