// Package query implements a process-wide, client-side query cache runtime:
// subscriptions declare a key and a fetch function, and the runtime serves
// cached values while they are fresh, deduplicates concurrent fetches per
// key, refetches on a timer, and invalidates related entries after writes.
//
// The runtime guarantees:
//
//   - At most one fetch in flight per key at any time (dedup)
//   - A fresh entry is never refetched merely due to staleness
//   - A failed refetch keeps the last successful value readable
//   - Invalidation of a key set is applied as a single batch
//   - Entries are retained while subscribed or fetching
//
// # Subscriptions
//
//	client := query.New(query.Options{})
//	defer client.Close()
//
//	sub, err := client.Subscribe(query.QuerySpec{
//		Key:             query.K("agent", 7),
//		Fetch:           func(ctx context.Context) (any, error) { return api.Get(ctx, 7) },
//		StaleTime:       5 * time.Second,
//		RefetchInterval: 15 * time.Second,
//		OnChange:        func(s query.Snapshot) { render(s) },
//	})
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
// # One-shot reads
//
//	v, err := client.Fetch(ctx, query.K("agents"), fetchList, time.Minute)
//
// # Mutations and invalidation
//
//	m, err := client.NewMutation(query.MutationSpec{
//		Run:         func(ctx context.Context) (any, error) { return api.Create(ctx, params) },
//		Invalidates: []query.Key{query.K("agents")},
//	})
//	if err != nil {
//		return err
//	}
//	created, err := m.Trigger(ctx)
//
// # Metrics
//
// The runtime exports Prometheus metrics:
//
//   - agentquery_fetches_total{result} - resolved fetches by result
//   - agentquery_fetch_dedup_total - fetch triggers suppressed by dedup
//   - agentquery_cache_hits_total / agentquery_cache_misses_total
//   - agentquery_invalidations_total - entries marked stale
//   - agentquery_active_subscriptions - live subscriptions
//   - agentquery_entries - entries held by the store
//   - agentquery_fetch_duration_seconds - fetch latency
package query
