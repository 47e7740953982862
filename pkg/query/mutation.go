package query

import (
	"context"
	"sync"
)

// MutationSpec declares a one-shot write operation and its cache side
// effects.
type MutationSpec struct {
	// Run performs the write against the backing resource.
	Run func(ctx context.Context) (any, error)

	// Invalidates lists the keys to mark stale after Run succeeds. The
	// whole set is invalidated as a single batch.
	Invalidates []Key

	// OnSuccess, when set, runs after a successful write and its
	// invalidations have been published.
	OnSuccess func(value any)

	// OnError, when set, runs after a failed write. A failed write never
	// invalidates any keys.
	OnError func(err error)
}

// Mutation is a triggerable write operation. Its pending/success/error state
// is tracked independently of any query status.
type Mutation struct {
	c    *Client
	spec MutationSpec

	mu     sync.Mutex
	status Status
	value  any
	err    error
}

// NewMutation builds a mutation bound to this client's invalidation bus.
func (c *Client) NewMutation(spec MutationSpec) (*Mutation, error) {
	if spec.Run == nil {
		return nil, ErrNoRunner
	}
	return &Mutation{c: c, spec: spec, status: StatusIdle}, nil
}

// Trigger performs the write. On success it publishes the mutation's
// invalidation set and returns the write's result; on failure the error is
// returned to the caller directly and nothing is invalidated. Triggering
// while a previous trigger is still running returns ErrMutationInFlight.
func (m *Mutation) Trigger(ctx context.Context) (any, error) {
	m.mu.Lock()
	if m.status == StatusPending {
		m.mu.Unlock()
		return nil, ErrMutationInFlight
	}
	m.status = StatusPending
	m.mu.Unlock()

	v, err := m.spec.Run(ctx)

	m.mu.Lock()
	if err != nil {
		m.status = StatusError
		m.err = err
	} else {
		m.status = StatusSuccess
		m.value = v
		m.err = nil
	}
	m.mu.Unlock()

	if err != nil {
		if m.spec.OnError != nil {
			m.spec.OnError(err)
		}
		return nil, err
	}

	m.c.Invalidate(m.spec.Invalidates...)
	if m.spec.OnSuccess != nil {
		m.spec.OnSuccess(v)
	}
	return v, nil
}

// Status returns the state of the most recent trigger.
func (m *Mutation) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the error of the most recent failed trigger, nil otherwise.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Value returns the result of the most recent successful trigger.
func (m *Mutation) Value() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
