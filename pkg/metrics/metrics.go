// Package metrics exposes the Prometheus registry shared by the portal API
// clients. Metrics are defined in their own packages (scheduler, ratelimit,
// cache, pagination, github) via promauto and registered on import.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the gatherer served by Handler. promauto registers every
// package metric on the default registry, which this gathers from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Scheduler Metrics (pkg/scheduler):
//   - portal_scheduler_queue_depth (Gauge): Operations waiting in the queue
//   - portal_scheduler_attempts_total (Counter): Operation invocations, including retries
//   - portal_scheduler_retries_total{class} (Counter): Retries by rate limit class
//   - portal_scheduler_backoff_seconds{class} (Histogram): Wait before a retry
//   - portal_scheduler_retry_exhausted_total{class} (Counter): Operations that ran out of retries
//   - portal_scheduler_backoff_multiplier (Gauge): Current pacing multiplier
//
// Rate Limit Metrics (pkg/ratelimit):
//   - portal_github_rate_limit_classifications_total{class} (Counter): Classified failures
//   - portal_github_rate_limit_remaining{resource} (Gauge): Quota remaining
//   - portal_github_rate_limit_exhausted_total{resource} (Counter): Responses with an exhausted quota
//
// Cache Metrics (pkg/cache):
//   - portal_github_cache_hits_total{state} (Counter): Hits by freshness
//   - portal_github_cache_misses_total (Counter): Misses
//   - portal_github_cache_stored_bytes_total (Counter): Bytes written
//   - portal_github_304_responses_total (Counter): Successful revalidations
//   - portal_github_conditional_requests_total (Counter): Requests sent with If-None-Match
//   - portal_github_cache_errors_total{operation} (Counter): Redis errors
//
// Request Metrics (pkg/github):
//   - portal_github_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//   - portal_github_request_duration_seconds{endpoint} (Histogram): Duration including queueing
//   - portal_github_errors_total{class} (Counter): Errors by class
//
// Jira Metrics (pkg/pagination):
//   - portal_jira_search_pages_total{product} (Counter): Search pages fetched
//   - portal_jira_search_issues_total{product} (Counter): Issues fetched
//   - portal_jira_search_failures_total{product} (Counter): Aborted searches
//
// Example Prometheus Queries:
//
//   # Secondary rate limit pressure
//   rate(portal_scheduler_retries_total{class="secondary"}[5m])
//
//   # Quota headroom
//   portal_github_rate_limit_remaining{resource="core"} < 100
//
//   # Revalidation rate
//   rate(portal_github_304_responses_total[5m]) / rate(portal_github_requests_total[5m])
//
//   # P95 request latency including queueing
//   histogram_quantile(0.95, rate(portal_github_request_duration_seconds_bucket[5m]))
