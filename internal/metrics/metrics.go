// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - API endpoint latency and throughput
// - Recommendation generation pipeline
// - Cache efficiency
// - Content provider calls and circuit breaker state
// - Feedback processing and learner state

var (
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

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Recommendation Pipeline Metrics
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_generation_duration_seconds",
			Help:    "End-to-end duration of recommendation generation in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Total number of recommendation sets served",
		},
		[]string{"source"}, // "cache", "generated", "stale", "fallback"
	)

	RecommendationCandidatePoolSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_candidate_pool_size",
			Help:    "Number of candidates entering the scoring pass",
			Buckets: []float64{25, 50, 100, 200, 300, 400, 500},
		},
	)

	RecommendationColdStartStage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cold_start_stage_total",
			Help: "Recommendation requests by cold-start stage",
		},
		[]string{"stage"}, // "new", "ramping", "established"
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "recommendations", "audio_features"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions (TTL expiry)",
		},
		[]string{"cache_type"},
	)

	// Content Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of content provider requests",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Content provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ProviderBudgetWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provider_budget_waits_total",
			Help: "Total number of waits imposed by the outbound call budget",
		},
	)

	ProviderFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provider_fallbacks_total",
			Help: "Total number of times the popularity fallback replaced provider data",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Feedback and Learner Metrics
	FeedbackProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_processed_total",
			Help: "Total number of feedback events processed",
		},
		[]string{"kind"},
	)

	FeedbackRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_rejected_total",
			Help: "Total number of feedback events rejected",
		},
		[]string{"reason"}, // "unknown_track", "invalid_payload"
	)

	LearnerQTableSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "learner_qtable_states",
			Help: "Current number of states in the Q-table",
		},
		[]string{"user_bucket"}, // bucketed to bound cardinality
	)

	LearnerReplayBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learner_replay_batches_total",
			Help: "Total number of experience replay batches processed",
		},
	)

	LearnerSnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "learner_snapshot_duration_seconds",
			Help:    "Duration of learner snapshot persistence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LearnerSnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learner_snapshot_errors_total",
			Help: "Total number of learner snapshot persistence errors",
		},
	)

	LearnerStateResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learner_state_resets_total",
			Help: "Total number of learner state resets due to corrupt snapshots",
		},
	)

	// Store Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of store query errors",
		},
		[]string{"operation", "table"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderCall records a content provider call and its outcome.
func RecordProviderCall(operation string, duration time.Duration, err error) {
	ProviderRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	ProviderRequestsTotal.WithLabelValues(operation, result).Inc()
}

// RecordStoreQuery records a store query metric.
func RecordStoreQuery(operation, table string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordFeedback records a processed feedback event by kind.
func RecordFeedback(kind string) {
	FeedbackProcessed.WithLabelValues(kind).Inc()
}

// RecordFeedbackRejection records a rejected feedback event.
func RecordFeedbackRejection(reason string) {
	FeedbackRejected.WithLabelValues(reason).Inc()
}

// RecordCacheResult records a cache hit or miss for the given cache type.
func RecordCacheResult(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}
