package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for store operations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

var (
	// storeOperationDuration tracks connector operation duration in seconds.
	// Labels: operation, outcome
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// storeOperationsTotal counts connector operations.
	// Labels: operation, outcome
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "outcome"},
	)

	// storeConnections is 1 while the connector holds an open connection.
	storeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docstore_connections_open",
			Help: "Number of open document store connections",
		},
	)

	// breakerRejections counts requests refused while the circuit breaker was open.
	breakerRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_breaker_rejections_total",
			Help: "Total number of document store requests rejected by an open circuit breaker",
		},
	)
)

// RecordStoreOperation records the duration and outcome of one operation.
func RecordStoreOperation(operation, outcome string, duration time.Duration) {
	storeOperationDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ConnectionOpened increments the open connections gauge.
func ConnectionOpened() {
	storeConnections.Inc()
}

// ConnectionClosed decrements the open connections gauge.
func ConnectionClosed() {
	storeConnections.Dec()
}

// BreakerRejected counts one request refused by an open circuit breaker.
func BreakerRejected() {
	breakerRejections.Inc()
}
