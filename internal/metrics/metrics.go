// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package metrics provides Prometheus instrumentation for the
// recommendation pipeline: HTTP traffic, catalog sourcing, scoring,
// rerank passes, cache efficiency and feedback volume.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics.

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of HTTP requests currently in flight",
		},
	)

	// Recommendation pipeline metrics.

	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_sessions_started_total",
			Help: "Total recommendation sessions started, by resolved mood",
		},
		[]string{"mood"},
	)

	PoolBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_pool_build_duration_seconds",
			Help:    "Duration of candidate pool sourcing and scoring",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	PoolSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_pool_size",
			Help:    "Number of candidates in the scored pool",
			Buckets: []float64{5, 10, 15, 20, 25, 30},
		},
	)

	PagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_pages_served_total",
			Help: "Total result pages served, by page kind",
		},
		[]string{"kind"}, // "first" or "more"
	)

	SourcingDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_sourcing_degraded_total",
			Help: "Pool builds that completed with partial catalog failures",
		},
	)

	// Rerank metrics.

	RerankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_rerank_duration_seconds",
			Help:    "Duration of background verification passes",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	RerankOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_rerank_outcomes_total",
			Help: "Background rerank outcomes",
		},
		[]string{"outcome"}, // "applied", "stale", "failed"
	)

	// Feedback metrics.

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_events_total",
			Help: "Total feedback events recorded, by kind",
		},
		[]string{"kind"},
	)

	// Catalog metrics.

	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Catalog cache hits, by cache",
		},
		[]string{"cache"},
	)

	CatalogCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Catalog cache misses, by cache",
		},
		[]string{"cache"},
	)
)

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordSessionStart records a new session and its pool build.
func RecordSessionStart(mood string, poolSize int, duration time.Duration) {
	SessionsStarted.WithLabelValues(mood).Inc()
	PoolSize.Observe(float64(poolSize))
	PoolBuildDuration.Observe(duration.Seconds())
}

// RecordRerank records a background rerank outcome.
func RecordRerank(outcome string, duration time.Duration) {
	RerankOutcomes.WithLabelValues(outcome).Inc()
	RerankDuration.Observe(duration.Seconds())
}
