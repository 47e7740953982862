package query

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle identifies one subscription for later removal. The zero Handle is
// not valid.
type Handle struct {
	id  uuid.UUID
	key Key
}

// store is the process-wide registry of cache entries. It owns every entry's
// lifecycle and is the single synchronization point for entry mutation:
// all transitions for a key are applied under the store mutex, so per-key
// updates are serialized while fetches for different keys run concurrently.
//
// The store is created and owned by a Client; it is passed by reference to
// the components that need it rather than living in a package global, so
// tests can build and discard isolated instances.
type store struct {
	mu      sync.Mutex
	entries map[string]*entry

	logger  zerolog.Logger
	gcGrace time.Duration

	stopGC chan struct{}
	wg     sync.WaitGroup
}

func newStore(logger zerolog.Logger, gcInterval, gcGrace time.Duration) *store {
	s := &store{
		entries: make(map[string]*entry),
		logger:  logger,
		gcGrace: gcGrace,
		stopGC:  make(chan struct{}),
	}
	if gcInterval > 0 && gcGrace > 0 {
		ticker := time.NewTicker(gcInterval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.sweep(time.Now())
				case <-s.stopGC:
					return
				}
			}
		}()
	}
	return s
}

func (s *store) close() {
	close(s.stopGC)
	s.wg.Wait()
}

// lookup returns a snapshot of the entry for key. It is a pure read with no
// side effects on entry state.
func (s *store) lookup(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(time.Now()), true
}

// subscribe registers interest in key, creating an idle entry if absent.
// The entry remembers the subscription's fetch function and staleTime so
// invalidation- and timer-driven refetches can reuse them. The returned
// snapshot is the entry state at registration time.
func (s *store) subscribe(key Key, fetch FetchFunc, staleTime time.Duration, notify func(Snapshot)) (Handle, Snapshot) {
	h := Handle{id: uuid.New(), key: key}

	s.mu.Lock()
	e := s.ensureLocked(key)
	e.fetch = fetch
	e.staleTime = staleTime
	e.subs[h.id] = notify
	e.idleSince = time.Time{}
	snap := e.snapshot(time.Now())
	s.mu.Unlock()

	ActiveSubscriptions.Inc()
	return h, snap
}

// unsubscribe removes a subscription. It is idempotent: removing a handle
// twice, or a handle for an evicted entry, is a no-op.
func (s *store) unsubscribe(h Handle) {
	s.mu.Lock()
	e, ok := s.entries[h.key.String()]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := e.subs[h.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(e.subs, h.id)
	if len(e.subs) == 0 {
		e.idleSince = time.Now()
	}
	s.mu.Unlock()

	ActiveSubscriptions.Dec()
}

// update applies a transition to the entry for key (creating it idle if
// absent) and notifies that key's subscribers. Callbacks run outside the
// lock but before update returns, so notification is synchronous with
// respect to the mutation that caused it.
func (s *store) update(key Key, apply func(*entry)) {
	s.mu.Lock()
	e := s.ensureLocked(key)
	apply(e)
	snap := e.snapshot(time.Now())
	targets := e.notifyTargets()
	s.mu.Unlock()

	for _, fn := range targets {
		fn(snap)
	}
}

// invalidateBatch marks every entry matching one of keys as stale. Matching
// is exact or part-wise prefix: invalidating K("agent") also marks
// K("agent", 7). All listed keys are processed in a single critical section,
// so no reader observes a partially invalidated batch. It returns the number
// of matched entries and the keys of matched entries that have at least one
// active subscriber and a usable fetch function.
func (s *store) invalidateBatch(keys []Key) (matched int, active []Key) {
	s.mu.Lock()
	for _, e := range s.entries {
		for _, k := range keys {
			if !e.key.HasPrefix(k) {
				continue
			}
			e.freshUntil = time.Time{}
			matched++
			if len(e.subs) > 0 && e.fetch != nil {
				active = append(active, e.key)
			}
			break
		}
	}
	s.mu.Unlock()
	return matched, active
}

// sweep evicts entries that have had no subscribers for the grace period.
// Entries with subscribers or an in-flight fetch are never evicted; a fetch
// that outlives its subscribers is allowed to land so the next subscriber
// finds a cached value.
func (s *store) sweep(now time.Time) {
	cutoff := now.Add(-s.gcGrace)

	s.mu.Lock()
	evicted := 0
	for id, e := range s.entries {
		if len(e.subs) > 0 || e.fetching {
			continue
		}
		if e.idleSince.IsZero() || e.idleSince.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		evicted++
	}
	size := len(s.entries)
	s.mu.Unlock()

	Entries.Set(float64(size))
	if evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Int("entries", size).Msg("Swept unreferenced cache entries")
	}
}

// ensureLocked returns the entry for key, creating it idle if absent.
// Caller must hold s.mu.
func (s *store) ensureLocked(key Key) *entry {
	id := key.String()
	e, ok := s.entries[id]
	if !ok {
		e = newEntry(key)
		s.entries[id] = e
		Entries.Set(float64(len(s.entries)))
	}
	return e
}
