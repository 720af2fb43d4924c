// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package metrics provides Prometheus instrumentation for sync passes,
// duplicate detection, the review fast path, connectors, and the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Operation Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of source sync passes in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // full pulls can take minutes
		},
		[]string{"source"},
	)

	SyncEventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_created_total",
			Help: "Total number of new events created during sync",
		},
		[]string{"source"},
	)

	SyncEventsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_updated_total",
			Help: "Total number of changed events updated during sync",
		},
		[]string{"source"},
	)

	SyncEventsUnchanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_unchanged_total",
			Help: "Total number of events skipped as identical during sync",
		},
		[]string{"source"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"source", "error_type"}, // "connector", "database", "watermark"
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync per source",
		},
		[]string{"source"},
	)

	// Duplicate Detection Metrics
	DedupeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dedupe_run_duration_seconds",
			Help:    "Duration of duplicate detection runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupeGroupsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_groups_found_total",
			Help: "Total number of spatiotemporal collision groups found",
		},
	)

	DedupePairsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_pairs_recorded_total",
			Help: "Total number of new duplicate guess pairs recorded",
		},
	)

	DedupePairsReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_pairs_replayed_total",
			Help: "Total number of already-known pairs seen again",
		},
	)

	// Review Fast Path Metrics
	ReviewsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_saved_total",
			Help: "Total number of review decisions saved",
		},
		[]string{"organization"},
	)

	ReviewCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cache_hits_total",
			Help: "Total number of review state cache hits",
		},
		[]string{"organization"},
	)

	ReviewCacheBackfills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cache_backfills_total",
			Help: "Total number of cold-start backfills from the durable log",
		},
		[]string{"organization"},
	)

	ReviewFocusMarks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_focus_marks",
			Help: "Current number of live attention marks",
		},
	)

	// Cache Metrics (General)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "connector", "zip_centroid"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Connector Metrics
	ConnectorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connector_request_duration_seconds",
			Help:    "Duration of upstream CRM requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector"},
	)

	ConnectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_errors_total",
			Help: "Total number of upstream CRM request errors",
		},
		[]string{"connector"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	PingHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ping_hits_total",
			Help: "Total number of tracking pixel hits",
		},
		[]string{"source"},
	)
)

// RecordSync records the outcome of one sync pass for a source.
func RecordSync(source string, duration time.Duration, created, updated, unchanged int, err error) {
	SyncDuration.WithLabelValues(source).Observe(duration.Seconds())
	SyncEventsCreated.WithLabelValues(source).Add(float64(created))
	SyncEventsUpdated.WithLabelValues(source).Add(float64(updated))
	SyncEventsUnchanged.WithLabelValues(source).Add(float64(unchanged))
	if err == nil {
		SyncLastSuccess.WithLabelValues(source).Set(float64(time.Now().Unix()))
	}
}

// RecordSyncError categorizes one sync failure.
func RecordSyncError(source, errorType string) {
	SyncErrors.WithLabelValues(source, errorType).Inc()
}

// RecordDedupeRun records the outcome of one detection run.
func RecordDedupeRun(duration time.Duration, groups, recorded, replayed int) {
	DedupeRunDuration.Observe(duration.Seconds())
	DedupeGroupsFound.Add(float64(groups))
	DedupePairsRecorded.Add(float64(recorded))
	DedupePairsReplayed.Add(float64(replayed))
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordConnectorRequest records one upstream CRM call.
func RecordConnectorRequest(connector string, duration time.Duration, err error) {
	ConnectorRequestDuration.WithLabelValues(connector).Observe(duration.Seconds())
	if err != nil {
		ConnectorErrors.WithLabelValues(connector).Inc()
	}
}
