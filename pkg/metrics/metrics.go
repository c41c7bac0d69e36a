// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionsTotal tracks finished ingestions by final batch state
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total number of ingestions by final batch state",
		},
		[]string{"state"},
	)

	// IngestedRows tracks rows read by outcome
	IngestedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of rows read by outcome",
		},
		[]string{"outcome"},
	)

	// IngestDuration tracks ingestion duration in seconds
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of ingestions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900},
		},
	)

	// ChunkPersistDuration tracks how long one chunk transaction takes
	ChunkPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "chunk_persist_seconds",
			Help:      "Duration of chunk persistence transactions in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// RebuildsTotal tracks cluster cache rebuilds by status
	RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "clusters",
			Name:      "rebuilds_total",
			Help:      "Total number of cluster cache rebuilds by status",
		},
		[]string{"status"},
	)

	// RebuildDuration tracks rebuild duration in seconds
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "clusters",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of cluster cache rebuilds in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// RebuildsInFlight tracks rebuilds currently holding a batch lock
	RebuildsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "clusters",
			Name:      "rebuilds_in_flight",
			Help:      "Number of cluster cache rebuilds currently running",
		},
	)

	// ClusterQueries tracks cluster page reads by kind filter
	ClusterQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "clusters",
			Name:      "queries_total",
			Help:      "Total number of cluster page queries by kind filter",
		},
		[]string{"kind"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks Kafka messages handled by the consumer
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages handled by the consumer",
		},
		[]string{"event", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// RecordIngestion records a finished ingestion
func RecordIngestion(state string, inserted, duplicates, failed int64, durationSeconds float64) {
	IngestionsTotal.WithLabelValues(state).Inc()
	IngestedRows.WithLabelValues("inserted").Add(float64(inserted))
	IngestedRows.WithLabelValues("duplicate").Add(float64(duplicates))
	IngestedRows.WithLabelValues("failed").Add(float64(failed))
	IngestDuration.Observe(durationSeconds)
}

// RecordRebuild records a cluster cache rebuild
func RecordRebuild(status string, durationSeconds float64) {
	RebuildsTotal.WithLabelValues(status).Inc()
	RebuildDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(event, status string) {
	KafkaMessagesConsumed.WithLabelValues(event, status).Inc()
}

// RecordHTTPRequest records an inbound API request
func RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
