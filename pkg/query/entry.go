package query

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a cached entry.
type Status string

const (
	// StatusIdle means no fetch has been attempted yet.
	StatusIdle Status = "idle"

	// StatusPending means a fetch is currently in flight.
	StatusPending Status = "pending"

	// StatusSuccess means the last fetch resolved with a value.
	StatusSuccess Status = "success"

	// StatusError means the last fetch failed. A value from a prior
	// successful fetch is retained and still readable.
	StatusError Status = "error"
)

// FetchFunc loads the value for a key from the backing resource.
// It must be safe to call from a background goroutine.
type FetchFunc func(ctx context.Context) (any, error)

// Snapshot is a point-in-time view of a cache entry as seen by consumers.
type Snapshot struct {
	// Key identifies the entry.
	Key Key

	// Status is the entry's lifecycle state.
	Status Status

	// Value is the payload of the last successful fetch, nil if none yet.
	// It is retained across failed refetches (stale-while-error).
	Value any

	// Err is the error of the last failed fetch, nil outside StatusError.
	Err error

	// UpdatedAt is when the last successful fetch resolved.
	UpdatedAt time.Time

	// Stale reports whether the freshness window has elapsed (or the entry
	// was explicitly invalidated) and the entry is eligible for refetch.
	Stale bool
}

// entry is the store-owned state for one key. All fields are guarded by the
// store mutex.
type entry struct {
	key        Key
	value      any
	hasValue   bool
	status     Status
	err        error
	freshUntil time.Time
	resolvedAt time.Time

	// fetching guards the dedup invariant: at most one fetch in flight.
	fetching bool

	// fetch and staleTime come from the most recent subscription and are
	// used for invalidation-driven and timer-driven refetches.
	fetch     FetchFunc
	staleTime time.Duration

	subs map[uuid.UUID]func(Snapshot)

	// idleSince is set when the subscriber count drops to zero; entries
	// are eligible for eviction once the grace period elapses.
	idleSince time.Time
}

func newEntry(key Key) *entry {
	return &entry{
		key:       key,
		status:    StatusIdle,
		subs:      make(map[uuid.UUID]func(Snapshot)),
		idleSince: time.Now(),
	}
}

// fresh reports whether the entry holds a value inside its freshness window.
// A fresh entry is never refetched merely due to staleness.
func (e *entry) fresh(now time.Time) bool {
	return e.status == StatusSuccess && now.Before(e.freshUntil)
}

func (e *entry) snapshot(now time.Time) Snapshot {
	return Snapshot{
		Key:       e.key,
		Status:    e.status,
		Value:     e.value,
		Err:       e.err,
		UpdatedAt: e.resolvedAt,
		Stale:     e.status == StatusSuccess && !now.Before(e.freshUntil),
	}
}

// notifyTargets returns the current subscriber callbacks. The slice is built
// under the store lock so callbacks can be invoked after it is released.
func (e *entry) notifyTargets() []func(Snapshot) {
	if len(e.subs) == 0 {
		return nil
	}
	targets := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		targets = append(targets, fn)
	}
	return targets
}
