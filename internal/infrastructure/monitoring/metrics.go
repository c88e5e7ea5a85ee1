package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type IdentifierMetrics struct {
	CounterDuration   *prometheus.HistogramVec
	InitialCollisions prometheus.Counter
	InitialsExhausted prometheus.Counter
}

type LegacyMetrics struct {
	SyncDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	TransitionsTotal   *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboarding_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Identifier = IdentifierMetrics{
		CounterDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboarding_sequence_counter_duration_seconds",
				Help:    "Histogram of sequence counter allocation latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"backend", "status"},
		),
		InitialCollisions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "onboarding_initial_collisions_total",
				Help: "Total number of borrower initial candidates rejected as already taken.",
			},
		),
		InitialsExhausted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "onboarding_initial_exhausted_total",
				Help: "Total number of borrower initial allocations that ran out of candidates.",
			},
		),
	}

	Legacy = LegacyMetrics{
		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboarding_legacy_sync_duration_seconds",
				Help:    "Histogram of legacy system call latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
	}

	Business = BusinessMetrics{
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_status_transitions_total",
				Help: "Total number of status change requests by target status and outcome.",
			},
			[]string{"target", "outcome"},
		),
		CompensationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_saga_compensations_total",
				Help: "Total number of legacy compensation pushes by trigger and outcome.",
			},
			[]string{"trigger", "outcome"},
		),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordCounterAllocation(backend, status string, duration time.Duration) {
	Identifier.CounterDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

func RecordInitialCollision() {
	Identifier.InitialCollisions.Inc()
}

func RecordInitialExhausted() {
	Identifier.InitialsExhausted.Inc()
}

func RecordLegacyCall(operation, outcome string, duration time.Duration) {
	Legacy.SyncDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func RecordTransition(target, outcome string) {
	Business.TransitionsTotal.WithLabelValues(target, outcome).Inc()
}

func RecordCompensation(trigger, outcome string) {
	Business.CompensationsTotal.WithLabelValues(trigger, outcome).Inc()
}

func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
