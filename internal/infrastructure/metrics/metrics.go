package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DispatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total dispatch calls by outcome",
		},
		[]string{"scope", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "keygate",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch call duration in seconds, including retries and rotation",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"scope", "outcome"},
	)

	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "dispatch",
			Name:      "key_rotations_total",
			Help:      "Total key rotations by triggering failure kind",
		},
		[]string{"scope", "kind"},
	)

	KeyCooldownsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "dispatch",
			Name:      "key_cooldowns_total",
			Help:      "Total cooldowns tripped by consecutive failures",
		},
		[]string{"scope"},
	)

	UpstreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "upstream",
			Name:      "failures_total",
			Help:      "Total classified upstream failures",
		},
		[]string{"scope", "kind"},
	)
)

// RecordDispatch records the outcome and duration of one dispatch call.
func RecordDispatch(scope, outcome string, seconds float64) {
	DispatchRequestsTotal.WithLabelValues(scope, outcome).Inc()
	DispatchDuration.WithLabelValues(scope, outcome).Observe(seconds)
}

// RecordRotation records a key rotation and its cause.
func RecordRotation(scope, kind string) {
	KeyRotationsTotal.WithLabelValues(scope, kind).Inc()
}

// RecordCooldown records a key entering cooldown.
func RecordCooldown(scope string) {
	KeyCooldownsTotal.WithLabelValues(scope).Inc()
}

// RecordUpstreamFailure records one classified upstream failure.
func RecordUpstreamFailure(scope, kind string) {
	UpstreamFailuresTotal.WithLabelValues(scope, kind).Inc()
}
