package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Options tune the behavior of the query client. The zero value is usable.
type Options struct {
	// Logger overrides the default component logger.
	Logger *zerolog.Logger

	// GCInterval is how often unreferenced entries are swept (0 => 1m).
	GCInterval time.Duration

	// GCGrace is how long an entry with no subscribers is retained before
	// it becomes eligible for eviction (0 => 5m).
	GCGrace time.Duration

	// StrictChecks makes consistency violations panic instead of only
	// being logged. Intended for tests and debug builds.
	StrictChecks bool
}

// Client is the query cache runtime. It owns the cache store, deduplicates
// concurrent fetches per key, applies the freshness policy, and coordinates
// invalidation-driven refetches.
//
// A Client is safe for concurrent use. Fetches for different keys run in
// parallel; state transitions for one key are serialized.
type Client struct {
	store  *store
	sf     singleflight.Group
	logger zerolog.Logger
	strict bool

	// baseCtx detaches fetches from subscriber lifetimes: a fetch whose
	// subscriber went away still resolves into the cache.
	baseCtx context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
}

// New creates a query client.
func New(opts Options) *Client {
	logger := log.With().Str("component", "query").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	gcInterval := opts.GCInterval
	if gcInterval == 0 {
		gcInterval = time.Minute
	}
	gcGrace := opts.GCGrace
	if gcGrace == 0 {
		gcGrace = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		store:   newStore(logger, gcInterval, gcGrace),
		logger:  logger,
		strict:  opts.StrictChecks,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Close stops background work and cancels in-flight fetches. The client must
// not be used afterwards.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.store.close()
}

// Lookup returns a snapshot of the entry for key without side effects.
func (c *Client) Lookup(key Key) (Snapshot, bool) {
	return c.store.lookup(key)
}

// Invalidate marks every entry matching one of keys (exact or part-wise
// prefix match) as stale in a single batch, then triggers one refetch per
// matched key that has at least one active subscriber. Matched keys without
// subscribers stay stale and are refetched lazily on the next subscription.
func (c *Client) Invalidate(keys ...Key) {
	if len(keys) == 0 || c.closed.Load() {
		return
	}
	matched, active := c.store.invalidateBatch(keys)
	if matched == 0 {
		return
	}
	InvalidationsTotal.Add(float64(matched))
	c.logger.Debug().Int("matched", matched).Int("active", len(active)).Msg("Invalidated cache entries")

	for _, k := range active {
		c.maybeStart(k, true)
	}
}

// Fetch is a one-shot read-through: it returns the cached value when fresh,
// otherwise it attaches to (or starts) a fetch for key and blocks until the
// entry reaches a terminal state or ctx is done. On a failed fetch the last
// known value, if any, is returned alongside the error.
func (c *Client) Fetch(ctx context.Context, key Key, fetch FetchFunc, staleTime time.Duration) (any, error) {
	if snap, ok := c.Lookup(key); ok && snap.Status == StatusSuccess && !snap.Stale {
		CacheHits.Inc()
		return snap.Value, nil
	}
	CacheMisses.Inc()

	// Coalescing wake-up signal; the snapshot is re-read on every wake so
	// dropped signals cannot lose the terminal transition.
	wake := make(chan struct{}, 1)
	sub, err := c.Subscribe(QuerySpec{
		Key:       key,
		Fetch:     fetch,
		StaleTime: staleTime,
		OnChange: func(Snapshot) {
			select {
			case wake <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	for {
		snap := sub.Snapshot()
		switch snap.Status {
		case StatusSuccess:
			return snap.Value, nil
		case StatusError:
			return snap.Value, snap.Err
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Prime seeds the cache with a value for key without fetching, as if a fetch
// had just resolved now with the given staleTime. Subscribers of the key are
// notified. A later resolution of an in-flight fetch overwrites the primed
// value (last write wins).
func (c *Client) Prime(key Key, value any, staleTime time.Duration) {
	if len(key) == 0 || c.closed.Load() {
		return
	}
	now := time.Now()
	c.store.update(key, func(e *entry) {
		e.status = StatusSuccess
		e.value = value
		e.hasValue = true
		e.err = nil
		e.resolvedAt = now
		e.freshUntil = now.Add(staleTime)
	})
}

// maybeStart begins a fetch for key unless one is already in flight or the
// entry is fresh (force skips the freshness check, for invalidation and
// timer ticks). Returns true when a fetch was started.
func (c *Client) maybeStart(key Key, force bool) bool {
	now := time.Now()
	s := c.store

	s.mu.Lock()
	e, ok := s.entries[key.String()]
	if !ok || e.fetch == nil {
		s.mu.Unlock()
		return false
	}
	if e.fetching {
		s.mu.Unlock()
		FetchDedupTotal.Inc()
		c.logger.Debug().Str("key", key.String()).Msg("Fetch suppressed, already in flight")
		return false
	}
	if !force && e.fresh(now) {
		s.mu.Unlock()
		return false
	}
	e.fetching = true
	e.status = StatusPending
	fetch := e.fetch
	staleTime := e.staleTime
	snap := e.snapshot(now)
	targets := e.notifyTargets()
	s.mu.Unlock()

	for _, fn := range targets {
		fn(snap)
	}

	c.logger.Debug().Str("key", key.String()).Msg("Fetch started")
	go c.runFetch(key, fetch, staleTime)
	return true
}

// runFetch executes the in-flight fetch for key and resolves the entry.
// The singleflight group is a second guard on the dedup invariant: even if
// two goroutines were ever started for one key, only one fetch would reach
// the backing resource.
func (c *Client) runFetch(key Key, fetch FetchFunc, staleTime time.Duration) {
	start := time.Now()
	v, err, _ := c.sf.Do(key.String(), func() (any, error) {
		return fetch(c.baseCtx)
	})
	FetchDuration.Observe(time.Since(start).Seconds())
	c.resolve(key, v, err, staleTime)
}

// resolve applies the outcome of the in-flight fetch for key. A failed fetch
// surfaces the error on the entry but keeps the value of the last success.
func (c *Client) resolve(key Key, v any, fetchErr error, staleTime time.Duration) {
	now := time.Now()
	s := c.store

	s.mu.Lock()
	e, ok := s.entries[key.String()]
	if !ok {
		s.mu.Unlock()
		c.consistency(key, "fetch resolved for evicted entry")
		return
	}
	if !e.fetching {
		s.mu.Unlock()
		c.consistency(key, "fetch resolved with no fetch in flight")
		return
	}
	e.fetching = false
	if fetchErr != nil {
		e.status = StatusError
		e.err = fetchErr
	} else {
		e.status = StatusSuccess
		e.value = v
		e.hasValue = true
		e.err = nil
		e.resolvedAt = now
		e.freshUntil = now.Add(staleTime)
	}
	snap := e.snapshot(now)
	targets := e.notifyTargets()
	s.mu.Unlock()

	if fetchErr != nil {
		FetchesTotal.WithLabelValues("error").Inc()
		c.logger.Debug().Str("key", key.String()).Err(fetchErr).Msg("Fetch failed")
	} else {
		FetchesTotal.WithLabelValues("success").Inc()
		c.logger.Debug().Str("key", key.String()).Msg("Fetch resolved")
	}

	// Only subscribers still attached at resolution time are notified.
	for _, fn := range targets {
		fn(snap)
	}
}

// consistency reports a violated invariant. With StrictChecks the client
// panics so tests and debug builds fail loudly.
func (c *Client) consistency(key Key, reason string) {
	err := &ConsistencyError{Key: key, Reason: reason}
	c.logger.Error().Str("key", key.String()).Msg(err.Error())
	if c.strict {
		panic(err)
	}
}

func validateSpec(spec QuerySpec) error {
	if len(spec.Key) == 0 {
		return ErrEmptyKey
	}
	if spec.Fetch == nil {
		return ErrNoFetcher
	}
	if spec.StaleTime < 0 || spec.RefetchInterval < 0 {
		return fmt.Errorf("negative durations are not allowed (staleTime=%s, refetchInterval=%s)",
			spec.StaleTime, spec.RefetchInterval)
	}
	return nil
}
