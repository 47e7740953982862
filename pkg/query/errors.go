package query

import (
	"errors"
	"fmt"
)

// Common errors returned by the query client.
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("query client is closed")

	// ErrEmptyKey is returned when a subscription or fetch names no key.
	ErrEmptyKey = errors.New("query key must not be empty")

	// ErrNoFetcher is returned when a subscription provides no fetch function.
	ErrNoFetcher = errors.New("fetch function is required")

	// ErrNoRunner is returned when a mutation provides no run function.
	ErrNoRunner = errors.New("mutation run function is required")

	// ErrMutationInFlight is returned when a mutation is triggered while a
	// previous trigger of the same mutation is still pending.
	ErrMutationInFlight = errors.New("mutation already in flight")
)

// ConsistencyError reports a violated cache invariant, e.g. a fetch resolution
// for a key with no fetch in flight. It should be unreachable in a correct
// build; with Options.StrictChecks enabled the client panics instead of only
// logging it.
type ConsistencyError struct {
	Key    Key
	Reason string
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache consistency violation for %q: %s", e.Key.String(), e.Reason)
}
