package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the query cache runtime.
var (
	// FetchesTotal counts resolved fetches by result (success, error).
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentquery_fetches_total",
			Help: "Total number of resolved query fetches by result",
		},
		[]string{"result"},
	)

	// FetchDedupTotal counts fetch triggers suppressed because a fetch for
	// the same key was already in flight.
	FetchDedupTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentquery_fetch_dedup_total",
			Help: "Total number of fetch triggers suppressed by dedup",
		},
	)

	// CacheHits counts reads served from a fresh cached value.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentquery_cache_hits_total",
			Help: "Total number of reads served from a fresh cache entry",
		},
	)

	// CacheMisses counts reads that required a fetch.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentquery_cache_misses_total",
			Help: "Total number of reads that required a fetch",
		},
	)

	// InvalidationsTotal counts entries marked stale by invalidation.
	InvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentquery_invalidations_total",
			Help: "Total number of cache entries marked stale by invalidation",
		},
	)

	// ActiveSubscriptions tracks the number of live subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentquery_active_subscriptions",
			Help: "Current number of active query subscriptions",
		},
	)

	// Entries tracks the number of entries held by the cache store.
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentquery_entries",
			Help: "Current number of entries in the query cache store",
		},
	)

	// FetchDuration observes fetch latency in seconds.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentquery_fetch_duration_seconds",
			Help:    "Query fetch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)
