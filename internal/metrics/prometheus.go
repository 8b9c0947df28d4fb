// Package metrics provides Prometheus metrics for the rotation scheduler.
// It tracks rotation outcomes, exhaustion events, caller-side waits, and
// pool occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keywheel"

// WaitBuckets defines histogram buckets for caller-side reset waits
// (in seconds). Rate windows are typically a minute long, so the buckets
// stretch from milliseconds up to a few window lengths.
var WaitBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5,
	1, 2.5, 5, 10, 15, 30, 60, 90, 120, 180,
}

var (
	// RotationsTotal counts rotation outcomes per credential.
	// outcome is "capacity" (a credential with headroom was found),
	// "exhausted" (the soonest-available fallback was handed out) or
	// "recheck" (a best-effort re-scan found late capacity).
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "Total number of credential rotations by outcome",
		},
		[]string{"credential", "outcome"},
	)

	// ExhaustionTotal counts rotations that found every credential
	// over quota.
	ExhaustionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exhaustion_total",
			Help:      "Total number of rotations with no credential capacity",
		},
	)

	// ResetWaitSeconds tracks how long callers waited for a window
	// slot before sending a request.
	ResetWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reset_wait_seconds",
			Help:      "Caller-side wait for the selected credential's window to open",
			Buckets:   WaitBuckets,
		},
	)

	// PoolSize tracks the number of credentials currently parked in
	// the pool (the checked-out credential, if any, is not counted).
	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Number of credentials currently held in the pool",
		},
	)

	// UsesRecorded counts usage markers reported by the transport.
	UsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uses_recorded_total",
			Help:      "Total usage markers recorded per credential",
		},
		[]string{"credential"},
	)
)

// Rotation outcome label values.
const (
	OutcomeCapacity  = "capacity"
	OutcomeRecheck   = "recheck"
	OutcomeExhausted = "exhausted"
)
