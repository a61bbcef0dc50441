// Package metrics provides Prometheus instrumentation for the batching
// engine and sink: batch composition, dispatch concurrency and latency,
// drops, and circuit-breaker state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchSize records the number of Events in each emitted batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventpipeline_batch_size",
			Help:    "Number of events in each emitted batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// BatchAge records the wall-clock age of a batch at emission time
	// (time from first-enqueued item to dispatch submission).
	BatchAge = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventpipeline_batch_age_seconds",
			Help:    "Age of an emitted batch, from first item enqueued to dispatch submission.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DispatchDuration records how long a downstream sink.ProcessBatch
	// call took to return.
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventpipeline_dispatch_duration_seconds",
			Help:    "Duration of a batch dispatch to the downstream sink.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// InflightBatches is the current number of batches submitted to the
	// executor but not yet complete.
	InflightBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventpipeline_inflight_batches",
			Help: "Batches currently submitted to the executor and not yet complete.",
		},
	)

	// EventsReceivedTotal counts events accepted into the batching
	// engine.
	EventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventpipeline_events_received_total",
			Help: "Total events accepted into the batching engine.",
		},
	)

	// EventsDroppedTotal counts drops, labeled by the stage and reason
	// responsible. Each RecordDrop call adds one: a dropped Process item,
	// a whole dropped ProcessBatch call, or a factory-declined merge
	// group counts once, whatever the number of events it held.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpipeline_events_dropped_total",
			Help: "Total drops (one per dropped item, batch submission or merge group), by stage and reason.",
		},
		[]string{"stage", "reason"},
	)

	// DispatchFailuresTotal counts sink dispatch failures, by error
	// category.
	DispatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpipeline_dispatch_failures_total",
			Help: "Total dispatch failures, by error category.",
		},
		[]string{"category"},
	)

	// CircuitBreakerState reports the sink's circuit breaker state as a
	// gauge: 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventpipeline_circuit_breaker_state",
			Help: "Sink circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)
)

// RecordBatchFlush records the size and age of a batch handed to the
// executor.
func RecordBatchFlush(size int, age time.Duration) {
	BatchSize.Observe(float64(size))
	BatchAge.Observe(age.Seconds())
}

// RecordDispatchDuration records how long a dispatch to the downstream
// sink took.
func RecordDispatchDuration(d time.Duration) {
	DispatchDuration.Observe(d.Seconds())
}

// RecordReceived increments the received-events counter by n.
func RecordReceived(n int) {
	EventsReceivedTotal.Add(float64(n))
}

// RecordDrop increments the drop counter for the given stage and reason.
func RecordDrop(stageName, reason string) {
	EventsDroppedTotal.WithLabelValues(stageName, reason).Inc()
}

// RecordDispatchFailure increments the dispatch failure counter for the
// given error category.
func RecordDispatchFailure(category string) {
	DispatchFailuresTotal.WithLabelValues(category).Inc()
}
