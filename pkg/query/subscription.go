package query

import (
	"sync"
	"time"
)

// QuerySpec declares a consumer's interest in one key: how to fetch it and
// the freshness policy to apply.
type QuerySpec struct {
	// Key identifies the cached unit.
	Key Key

	// Fetch loads the value from the backing resource. It becomes the
	// entry's fetch function, reused for invalidation- and timer-driven
	// refetches.
	Fetch FetchFunc

	// StaleTime is how long a resolved value counts as fresh. The default
	// of 0 means a value is stale as soon as it resolves.
	StaleTime time.Duration

	// RefetchInterval, when positive, refetches the key periodically while
	// this subscription is active, regardless of freshness.
	RefetchInterval time.Duration

	// Disabled registers the subscription without triggering a fetch or
	// starting the refetch timer. Refetch can still be called explicitly.
	Disabled bool

	// OnChange, when set, is invoked with a snapshot after every state
	// transition of the entry, and once with the state at subscribe time.
	// It must not block.
	OnChange func(Snapshot)
}

// Subscription is a live view on one cache entry. It updates (via OnChange)
// whenever the entry changes and keeps the entry retained until Close.
type Subscription struct {
	c    *Client
	key  Key
	h    Handle
	stop chan struct{}
	once sync.Once
}

// Subscribe registers a subscription for spec.Key and, unless the spec is
// disabled, triggers a fetch if the entry is not fresh. Callers must Close
// the subscription when done.
func (c *Client) Subscribe(spec QuerySpec) (*Subscription, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	notify := spec.OnChange
	if notify == nil {
		notify = func(Snapshot) {}
	}

	h, snap := c.store.subscribe(spec.Key, spec.Fetch, spec.StaleTime, notify)
	sub := &Subscription{
		c:    c,
		key:  spec.Key,
		h:    h,
		stop: make(chan struct{}),
	}

	// Deliver the state at registration time so consumers start from a
	// known snapshot before any transition lands.
	if spec.OnChange != nil {
		spec.OnChange(snap)
	}

	if !spec.Disabled {
		c.maybeStart(spec.Key, false)
		if spec.RefetchInterval > 0 {
			go sub.refetchLoop(spec.RefetchInterval)
		}
	}
	return sub, nil
}

// Snapshot returns the current state of the subscribed entry.
func (s *Subscription) Snapshot() Snapshot {
	snap, ok := s.c.Lookup(s.key)
	if !ok {
		// Entry evicted while subscribed would violate the retention
		// invariant; surface it rather than fabricating state.
		s.c.consistency(s.key, "subscribed entry missing from store")
		return Snapshot{Key: s.key, Status: StatusIdle}
	}
	return snap
}

// Refetch explicitly triggers a fetch for the subscribed key, regardless of
// freshness. A trigger while a fetch is in flight is a no-op.
func (s *Subscription) Refetch() {
	s.c.maybeStart(s.key, true)
}

// Close detaches the subscription and stops its refetch timer immediately.
// It is idempotent. An in-flight fetch is allowed to complete and cache its
// result, but this subscription is no longer notified.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.c.store.unsubscribe(s.h)
	})
}

// refetchLoop drives the periodic background refetch for this subscription.
// The ticker stops as soon as the subscription closes; a tick that lands
// while a fetch is pending is absorbed by dedup.
func (s *Subscription) refetchLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.c.maybeStart(s.key, true)
		case <-s.stop:
			return
		}
	}
}
