package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/integraitepro/agentquery/internal/testutil"
	"github.com/integraitepro/agentquery/pkg/query"
)

func newTestQueries(t *testing.T) (*testutil.MockAPI, *Queries) {
	t.Helper()

	mock, client := newTestAPI(t)

	nop := zerolog.Nop()
	qc := query.New(query.Options{
		Logger:       &nop,
		GCInterval:   time.Hour,
		GCGrace:      time.Hour,
		StrictChecks: true,
	})
	t.Cleanup(qc.Close)

	return mock, NewQueries(client, qc)
}

// snapshotLog collects every snapshot a subscription delivers.
type snapshotLog struct {
	mu    sync.Mutex
	snaps []query.Snapshot
}

func (l *snapshotLog) record(s query.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) waitForStatus(t *testing.T, want query.Status) query.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, s := range l.snaps {
			if s.Status == want {
				l.mu.Unlock()
				return s
			}
		}
		l.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q", want)
	return query.Snapshot{}
}

func (l *snapshotLog) statuses() []query.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]query.Status, len(l.snaps))
	for i, s := range l.snaps {
		out[i] = s.Status
	}
	return out
}

func waitForCount(t *testing.T, want int, count func() int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for count %d, got %d", want, count())
}

func TestWatchAgent_Lifecycle(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})

	var log snapshotLog
	sub, err := q.WatchAgent("agent-001", WatchOptions{
		StaleTime: time.Minute,
		OnChange:  log.record,
	})
	if err != nil {
		t.Fatalf("WatchAgent() error = %v", err)
	}
	defer sub.Close()

	snap := log.waitForStatus(t, query.StatusSuccess)
	agent, ok := AgentFrom(snap)
	if !ok {
		t.Fatalf("snapshot value is %T, want *Agent", snap.Value)
	}
	if agent.Name != "triage" {
		t.Errorf("Name = %q, want %q", agent.Name, "triage")
	}

	// idle at subscribe time, then pending, then success.
	got := log.statuses()
	want := []query.Status{query.StatusIdle, query.StatusPending, query.StatusSuccess}
	if len(got) < len(want) {
		t.Fatalf("got %d transitions, want at least %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWatchAgent_FreshEntrySharedAcrossWatchers(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})

	var first snapshotLog
	sub1, err := q.WatchAgent("agent-001", WatchOptions{StaleTime: time.Minute, OnChange: first.record})
	if err != nil {
		t.Fatalf("WatchAgent() error = %v", err)
	}
	defer sub1.Close()
	first.waitForStatus(t, query.StatusSuccess)

	// A second watcher inside the freshness window sees the cached value
	// immediately and triggers no fetch.
	var second snapshotLog
	sub2, err := q.WatchAgent("agent-001", WatchOptions{StaleTime: time.Minute, OnChange: second.record})
	if err != nil {
		t.Fatalf("WatchAgent() error = %v", err)
	}
	defer sub2.Close()
	second.waitForStatus(t, query.StatusSuccess)

	if got := mock.CallCount("GET", "/api/v1/agents/agent-001"); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
}

func TestUpdateAgentStatus_InvalidatesAgentAndList(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "inactive"})

	var agentLog, listLog snapshotLog
	agentSub, err := q.WatchAgent("agent-001", WatchOptions{StaleTime: time.Minute, OnChange: agentLog.record})
	if err != nil {
		t.Fatalf("WatchAgent() error = %v", err)
	}
	defer agentSub.Close()
	listSub, err := q.WatchAgents(WatchOptions{StaleTime: time.Minute, OnChange: listLog.record})
	if err != nil {
		t.Fatalf("WatchAgents() error = %v", err)
	}
	defer listSub.Close()

	agentLog.waitForStatus(t, query.StatusSuccess)
	listLog.waitForStatus(t, query.StatusSuccess)

	result, err := q.UpdateAgentStatus(context.Background(), "agent-001", StatusActive)
	if err != nil {
		t.Fatalf("UpdateAgentStatus() error = %v", err)
	}
	if result.NewStatus != StatusActive {
		t.Errorf("NewStatus = %q, want %q", result.NewStatus, StatusActive)
	}

	// Both watched keys refetch exactly once.
	waitForCount(t, 2, func() int { return mock.CallCount("GET", "/api/v1/agents/agent-001") })
	waitForCount(t, 2, func() int { return mock.CallCount("GET", "/api/v1/agents/") })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := agentSub.Snapshot()
		if agent, ok := AgentFrom(snap); ok && agent.Status == StatusActive && !snap.Stale {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	agent, _ := AgentFrom(agentSub.Snapshot())
	if agent == nil || agent.Status != StatusActive {
		t.Errorf("watched agent did not converge to %q", StatusActive)
	}

	// Settle, then confirm no extra refetches were triggered.
	time.Sleep(50 * time.Millisecond)
	if got := mock.CallCount("GET", "/api/v1/agents/agent-001"); got != 2 {
		t.Errorf("agent fetch count = %d, want 2", got)
	}
	if got := mock.CallCount("GET", "/api/v1/agents/"); got != 2 {
		t.Errorf("list fetch count = %d, want 2", got)
	}
}

func TestCreateAgent_InvalidatesList(t *testing.T) {
	mock, q := newTestQueries(t)

	var listLog snapshotLog
	sub, err := q.WatchAgents(WatchOptions{StaleTime: time.Minute, OnChange: listLog.record})
	if err != nil {
		t.Fatalf("WatchAgents() error = %v", err)
	}
	defer sub.Close()
	listLog.waitForStatus(t, query.StatusSuccess)

	agent, err := q.CreateAgent(context.Background(), DeployParams{Name: "db-watchdog", Layer: "database"})
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}

	waitForCount(t, 2, func() int { return mock.CallCount("GET", "/api/v1/agents/") })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if list, ok := AgentsFrom(sub.Snapshot()); ok && len(list) == 1 && list[0].ID == agent.ID {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Errorf("watched list never picked up the deployed agent %s", agent.ID)
}

func TestDeleteAgent_FailedMutationDoesNotInvalidate(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})

	var listLog snapshotLog
	sub, err := q.WatchAgents(WatchOptions{StaleTime: time.Minute, OnChange: listLog.record})
	if err != nil {
		t.Fatalf("WatchAgents() error = %v", err)
	}
	defer sub.Close()
	listLog.waitForStatus(t, query.StatusSuccess)

	if err := q.DeleteAgent(context.Background(), "agent-missing"); err == nil {
		t.Fatal("expected delete of missing agent to fail")
	}

	time.Sleep(50 * time.Millisecond)
	if got := mock.CallCount("GET", "/api/v1/agents/"); got != 1 {
		t.Errorf("list fetch count = %d, want 1 (failed mutation must not invalidate)", got)
	}
	if snap := sub.Snapshot(); snap.Stale {
		t.Error("list entry marked stale by failed mutation")
	}
}

func TestListAgents_OneShot(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})

	list, err := q.ListAgents(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListAgents() returned %d agents, want 1", len(list))
	}

	// Second read inside the freshness window is served from cache.
	if _, err := q.ListAgents(context.Background(), time.Minute); err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}
	if got := mock.CallCount("GET", "/api/v1/agents/"); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
}

func TestPrefetch_WarmsListAndAgents(t *testing.T) {
	mock, q := newTestQueries(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})
	mock.AddAgent(testutil.AgentFixture{ID: "agent-002", Name: "scrubber", Status: "paused"})

	if err := q.Prefetch(context.Background(), time.Minute, 2); err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}

	// Everything is warm: subsequent reads hit the cache only.
	if _, err := q.GetAgent(context.Background(), "agent-001", time.Minute); err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if _, err := q.GetAgent(context.Background(), "agent-002", time.Minute); err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if _, err := q.ListAgents(context.Background(), time.Minute); err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}

	if got := mock.CallCount("GET", "/api/v1/agents/"); got != 1 {
		t.Errorf("list fetch count = %d, want 1", got)
	}
	if got := mock.CallCount("GET", "/api/v1/agents/agent-001"); got != 1 {
		t.Errorf("agent-001 fetch count = %d, want 1", got)
	}
	if got := mock.CallCount("GET", "/api/v1/agents/agent-002"); got != 1 {
		t.Errorf("agent-002 fetch count = %d, want 1", got)
	}
}

func TestKeyConstructors(t *testing.T) {
	if got := KeyAgents().String(); got != "agents" {
		t.Errorf("KeyAgents() = %q, want %q", got, "agents")
	}
	if got := KeyAgent("agent-001").String(); got != "agent:agent-001" {
		t.Errorf("KeyAgent() = %q, want %q", got, "agent:agent-001")
	}
	if KeyAgents().HasPrefix(KeyAgent("agent-001")) {
		t.Error("list key must not match the item key prefix")
	}
}
