package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every metric this package defines. The core never
// exposes it over HTTP itself: an out-of-scope status process registers
// these collectors (or scrapes Registry directly) the same way it reads
// control.KnownPools, so pkg/metrics has no promhttp.Handler of its own.
var Registry = prometheus.NewRegistry()

var (
	// ReconciliationTickDuration times one control-loop tick (§4.6), from
	// ListPools through the queue/tracker diff.
	ReconciliationTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coreloop_reconciliation_tick_duration_seconds",
			Help:    "Time taken for one control loop reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconciliationTicksTotal counts completed ticks by outcome.
	ReconciliationTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreloop_reconciliation_ticks_total",
			Help: "Total number of control loop ticks, by outcome.",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	// KnownPoolsGauge mirrors the size of C6's last published known-pools
	// snapshot.
	KnownPoolsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coreloop_known_pools",
			Help: "Number of pools in the most recently published known-pools snapshot.",
		},
	)

	// TrackedTenantsGauge mirrors the size of C4's desired set.
	TrackedTenantsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coreloop_tracked_tenants",
			Help: "Number of tenant keys currently in the target tracker's desired set.",
		},
	)

	// DriverOperationDuration times each C5 call attempt by operation, the
	// driver calls and the teardown's broker and keep-alive steps alike.
	DriverOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coreloop_driver_operation_duration_seconds",
			Help:    "Time taken for a driver operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "get_or_create_pool", "destroy_pool", "delete_queue", "delete_keep_alive"
	)

	// DriverErrorsTotal counts C5 call failures by operation and error kind
	// (driver calls plus declare_queue, delete_queue and delete_keep_alive).
	DriverErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreloop_driver_errors_total",
			Help: "Total number of driver operation failures, by operation and error kind.",
		},
		[]string{"operation", "kind"},
	)

	// RetriesTotal counts every attempt C5 makes through backoff.Retry,
	// first try included, by the step being attempted.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreloop_retries_total",
			Help: "Total number of attempts (first try included) issued by the pool supervisor's retry loop, by step.",
		},
		[]string{"step"}, // "create_pool", "destroy_pool", "delete_queue", "delete_keep_alive"
	)

	// FatalThresholdReachedTotal counts how many times a component's error
	// counter reached its configured maximum and closed its Fatal channel.
	FatalThresholdReachedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coreloop_fatal_threshold_reached_total",
			Help: "Total number of times a component's fatal error threshold was reached, by component.",
		},
		[]string{"component"}, // "supervisor" or "control"
	)

	// ReconnectsTotal counts C7 broker reconnect cycles.
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coreloop_broker_reconnects_total",
			Help: "Total number of times the broker connection was lost and redialed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		ReconciliationTickDuration,
		ReconciliationTicksTotal,
		KnownPoolsGauge,
		TrackedTenantsGauge,
		DriverOperationDuration,
		DriverErrorsTotal,
		RetriesTotal,
		FatalThresholdReachedTotal,
		ReconnectsTotal,
	)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
