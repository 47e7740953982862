package agents

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/integraitepro/agentquery/pkg/query"
)

// Query keys for the agents resource. The aggregate list and single items
// use distinct leading parts, so invalidating one never implies the other;
// mutations list both explicitly.
func KeyAgents() query.Key { return query.K("agents") }

// KeyAgent returns the query key for a single agent.
func KeyAgent(id string) query.Key { return query.K("agent", id) }

// WatchOptions is the freshness policy for a live agent subscription.
type WatchOptions struct {
	// StaleTime is how long a fetched value counts as fresh (default 0).
	StaleTime time.Duration

	// RefetchInterval refetches periodically while watching (0 disables).
	RefetchInterval time.Duration

	// Disabled registers the watch without fetching.
	Disabled bool

	// OnChange receives a snapshot after every state transition.
	OnChange func(query.Snapshot)
}

// Queries binds the agents API to a query cache client. It is the read/write
// surface consumers use instead of talking to the API directly.
type Queries struct {
	api *Client
	qc  *query.Client
}

// NewQueries creates the cache-backed agents query surface.
func NewQueries(api *Client, qc *query.Client) *Queries {
	return &Queries{api: api, qc: qc}
}

// WatchAgents subscribes to the agent list. The subscription must be closed
// when no longer needed.
func (q *Queries) WatchAgents(opts WatchOptions) (*query.Subscription, error) {
	return q.qc.Subscribe(query.QuerySpec{
		Key: KeyAgents(),
		Fetch: func(ctx context.Context) (any, error) {
			return q.api.List(ctx)
		},
		StaleTime:       opts.StaleTime,
		RefetchInterval: opts.RefetchInterval,
		Disabled:        opts.Disabled,
		OnChange:        opts.OnChange,
	})
}

// WatchAgent subscribes to a single agent.
func (q *Queries) WatchAgent(id string, opts WatchOptions) (*query.Subscription, error) {
	return q.qc.Subscribe(query.QuerySpec{
		Key: KeyAgent(id),
		Fetch: func(ctx context.Context) (any, error) {
			return q.api.Get(ctx, id)
		},
		StaleTime:       opts.StaleTime,
		RefetchInterval: opts.RefetchInterval,
		Disabled:        opts.Disabled,
		OnChange:        opts.OnChange,
	})
}

// ListAgents is a one-shot cache-backed read of the agent list.
func (q *Queries) ListAgents(ctx context.Context, staleTime time.Duration) ([]Agent, error) {
	v, err := q.qc.Fetch(ctx, KeyAgents(), func(ctx context.Context) (any, error) {
		return q.api.List(ctx)
	}, staleTime)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]Agent)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value type %T for agent list", v)
	}
	return list, nil
}

// GetAgent is a one-shot cache-backed read of a single agent.
func (q *Queries) GetAgent(ctx context.Context, id string, staleTime time.Duration) (*Agent, error) {
	v, err := q.qc.Fetch(ctx, KeyAgent(id), func(ctx context.Context) (any, error) {
		return q.api.Get(ctx, id)
	}, staleTime)
	if err != nil {
		return nil, err
	}
	a, ok := v.(*Agent)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value type %T for agent", v)
	}
	return a, nil
}

// CreateAgent deploys a new agent and invalidates the agent list on success.
func (q *Queries) CreateAgent(ctx context.Context, params DeployParams) (*Agent, error) {
	m, err := q.qc.NewMutation(query.MutationSpec{
		Run: func(ctx context.Context) (any, error) {
			return q.api.Create(ctx, params)
		},
		Invalidates: []query.Key{KeyAgents()},
	})
	if err != nil {
		return nil, err
	}
	v, err := m.Trigger(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*Agent), nil
}

// UpdateAgentStatus changes an agent's status. On success it invalidates
// both the agent's own entry and the aggregate list.
func (q *Queries) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) (*StatusUpdateResult, error) {
	m, err := q.qc.NewMutation(query.MutationSpec{
		Run: func(ctx context.Context) (any, error) {
			return q.api.UpdateStatus(ctx, id, status)
		},
		Invalidates: []query.Key{KeyAgent(id), KeyAgents()},
	})
	if err != nil {
		return nil, err
	}
	v, err := m.Trigger(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*StatusUpdateResult), nil
}

// DeleteAgent removes an agent and invalidates its entry plus the list.
func (q *Queries) DeleteAgent(ctx context.Context, id string) error {
	m, err := q.qc.NewMutation(query.MutationSpec{
		Run: func(ctx context.Context) (any, error) {
			return nil, q.api.Delete(ctx, id)
		},
		Invalidates: []query.Key{KeyAgent(id), KeyAgents()},
	})
	if err != nil {
		return err
	}
	_, err = m.Trigger(ctx)
	return err
}

// Prefetch warms the cache: it loads the agent list, then every per-agent
// entry in parallel with bounded concurrency. Errors on individual agents
// abort the warm-up and are returned.
func (q *Queries) Prefetch(ctx context.Context, staleTime time.Duration, maxConcurrency int) error {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}

	list, err := q.ListAgents(ctx, staleTime)
	if err != nil {
		return fmt.Errorf("prefetch agent list: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for _, a := range list {
		id := a.ID
		g.Go(func() error {
			if _, err := q.GetAgent(ctx, id, staleTime); err != nil {
				return fmt.Errorf("prefetch agent %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AgentsFrom extracts the typed agent list from a snapshot, if present.
func AgentsFrom(s query.Snapshot) ([]Agent, bool) {
	list, ok := s.Value.([]Agent)
	return list, ok
}

// AgentFrom extracts a typed agent from a snapshot, if present.
func AgentFrom(s query.Snapshot) (*Agent, bool) {
	a, ok := s.Value.(*Agent)
	return a, ok
}
