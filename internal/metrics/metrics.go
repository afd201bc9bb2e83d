// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package metrics provides Prometheus metrics collection for the ingestion
// pipeline. Metrics are exposed at the /metrics endpoint in Prometheus text
// format.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Active HTTP requests",
		},
	)

	// Admission control metrics
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_denials_total",
			Help: "Requests denied by a rate-limit scope",
		},
		[]string{"scope"},
	)

	RateLimitStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Coordination-store failures during limit checks, by scope and policy outcome",
		},
		[]string{"scope", "outcome"}, // outcome: "fail_open", "fail_closed"
	)

	TokenCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_cache_hits_total",
			Help: "Token verifications served from the shared cache",
		},
	)

	TokenCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_cache_misses_total",
			Help: "Token verifications resolved against the source of truth",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Admission failures by classification",
		},
		[]string{"reason"}, // "unauthenticated", "forbidden"
	)

	// Ingestion metrics
	IngestAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_accepted_total",
			Help: "Interactions committed, by origin",
		},
		[]string{"origin"}, // "single", "batch"
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rejected_total",
			Help: "Interactions rejected, by reason",
		},
		[]string{"reason"}, // "validation", "not_found", "storage"
	)

	IngestTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_transaction_duration_seconds",
			Help:    "Duration of the transactional write",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	BatchChunksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_batch_chunks_total",
			Help: "Batch chunks processed",
		},
	)

	// Dispatcher metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_enqueued_total",
			Help: "Analysis jobs published, by priority",
		},
		[]string{"priority"},
	)

	JobEnqueueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_enqueue_failures_total",
			Help: "Enqueue failures observed after a successful commit",
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_processed_total",
			Help: "Analysis jobs completed, by outcome",
		},
		[]string{"priority", "outcome"},
	)

	DeadLetterEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_dead_letter_entries",
			Help: "Jobs currently retained in the inspection set",
		},
	)

	// Fan-out metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Active WebSocket subscribers",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Events delivered to subscribers",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Events dropped for slow or disconnected subscribers",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Query execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Failed queries",
		},
		[]string{"operation"},
	)
)

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetBreakerState exports a circuit breaker's state transition.
func SetBreakerState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordDBQuery records one query's duration and error outcome.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
