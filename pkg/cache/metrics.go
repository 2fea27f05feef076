package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by freshness ("fresh", "stale").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_github_cache_hits_total",
			Help: "Total number of GitHub response cache hits by freshness",
		},
		[]string{"state"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_github_cache_misses_total",
			Help: "Total number of GitHub response cache misses",
		},
	)

	// CacheStoredBytes counts bytes written to Redis.
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_github_cache_stored_bytes_total",
			Help: "Total bytes of GitHub responses written to the cache",
		},
	)

	// NotModifiedResponses counts 304s, which GitHub does not charge
	// against the primary quota.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_github_304_responses_total",
			Help: "Total number of GitHub 304 Not Modified responses",
		},
	)

	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_github_conditional_requests_total",
			Help: "Total number of conditional requests sent with If-None-Match or If-Modified-Since",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_github_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
