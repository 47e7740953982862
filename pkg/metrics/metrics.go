// Package metrics provides the centralized Prometheus metrics reference for
// the agents query runtime. All metrics are defined in their respective
// packages (query, agents) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the runtime.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Query Cache Metrics (pkg/query):
//   - agentquery_fetches_total{result} (Counter): Resolved fetches by result (success, error)
//   - agentquery_fetch_dedup_total (Counter): Fetch triggers suppressed because one was already in flight
//   - agentquery_cache_hits_total (Counter): One-shot reads served from a fresh entry
//   - agentquery_cache_misses_total (Counter): One-shot reads that had to attach to a fetch
//   - agentquery_invalidations_total (Counter): Entries marked stale by invalidation batches
//   - agentquery_active_subscriptions (Gauge): Currently registered subscriptions
//   - agentquery_entries (Gauge): Entries currently held in the cache
//   - agentquery_fetch_duration_seconds (Histogram): Fetch duration
//
// Agents API Metrics (pkg/agents):
//   - agents_api_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - agents_api_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - agents_api_errors_total{class} (Counter): Errors by class (client, server, network)
//   - agents_api_retries_total{error_class} (Counter): Retry attempts by error class
//   - agents_api_retry_exhausted_total (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(agentquery_cache_hits_total[5m])) /
//   (sum(rate(agentquery_cache_hits_total[5m])) + sum(rate(agentquery_cache_misses_total[5m])))
//
//   # Dedup Effectiveness
//   rate(agentquery_fetch_dedup_total[5m]) / rate(agentquery_fetches_total[5m])
//
//   # Request Error Rate
//   rate(agents_api_errors_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(agentquery_fetch_duration_seconds_bucket[5m]))
