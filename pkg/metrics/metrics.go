// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts CRUD operations by entity, operation and status
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "crud",
			Name:      "operations_total",
			Help:      "Total number of CRUD operations by entity, operation and status",
		},
		[]string{"entity", "operation", "status"},
	)

	// OperationDuration tracks CRUD operation duration in seconds
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "crud",
			Name:      "operation_duration_seconds",
			Help:      "Duration of CRUD operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"entity", "operation"},
	)

	// GuardRejections counts deletes rejected by a guard
	GuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "crud",
			Name:      "guard_rejections_total",
			Help:      "Total number of deletes rejected by a guard",
		},
		[]string{"entity", "guard"},
	)

	// QueryDuration tracks database query duration
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"entity", "query"},
	)

	// TwoPassPages counts paginated reads that needed an id pass because of joins
	TwoPassPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "pagination",
			Name:      "two_pass_total",
			Help:      "Total number of paginated reads executed as id pass plus row pass",
		},
		[]string{"entity"},
	)

	// AssetCleanupFailures counts best-effort asset removals that failed
	AssetCleanupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "assets",
			Name:      "cleanup_failures_total",
			Help:      "Total number of failed asset removals",
		},
		[]string{"entity", "backend"},
	)

	// KafkaMessagesPublished tracks record events published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of record events published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordOperation records a CRUD operation metric
func RecordOperation(entity, operation string, err error, durationSeconds float64) {
	OperationsTotal.WithLabelValues(entity, operation, status(err)).Inc()
	OperationDuration.WithLabelValues(entity, operation).Observe(durationSeconds)
}

// RecordQuery records a database query duration
func RecordQuery(entity, query string, durationSeconds float64) {
	QueryDuration.WithLabelValues(entity, query).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic string, err error) {
	KafkaMessagesPublished.WithLabelValues(topic, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
