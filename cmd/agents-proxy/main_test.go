package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/integraitepro/agentquery/internal/testutil"
	"github.com/integraitepro/agentquery/pkg/agents"
	"github.com/integraitepro/agentquery/pkg/query"
)

func setupProxy(t *testing.T) (*testutil.MockAPI, http.HandlerFunc) {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	client, err := agents.New(agents.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("Failed to create agents client: %v", err)
	}

	nop := zerolog.Nop()
	qc := query.New(query.Options{Logger: &nop, GCInterval: time.Hour, GCGrace: time.Hour})
	t.Cleanup(qc.Close)

	queries := agents.NewQueries(client, qc)
	return mock, agentsHandler(queries, time.Minute, nop)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestAgentsHandler_ListCached(t *testing.T) {
	mock, handler := setupProxy(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "active"})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/agents/", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var list []agents.Agent
		if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("Expected 1 agent, got %d", len(list))
		}
	}

	// All three reads inside the freshness window share one backend fetch.
	if got := mock.CallCount("GET", "/api/v1/agents/"); got != 1 {
		t.Errorf("Backend fetch count = %d, want 1", got)
	}
}

func TestAgentsHandler_GetNotFound(t *testing.T) {
	_, handler := setupProxy(t)

	req := httptest.NewRequest("GET", "/api/v1/agents/agent-missing", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAgentsHandler_StatusUpdateInvalidatesCache(t *testing.T) {
	mock, handler := setupProxy(t)
	mock.AddAgent(testutil.AgentFixture{ID: "agent-001", Name: "triage", Status: "inactive"})

	// Warm the per-agent entry.
	req := httptest.NewRequest("GET", "/api/v1/agents/agent-001", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// Change the status through the proxy.
	req = httptest.NewRequest("PUT", "/api/v1/agents/agent-001/status", strings.NewReader(`{"status": "active"}`))
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// A subsequent read must not serve the stale cached status.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req = httptest.NewRequest("GET", "/api/v1/agents/agent-001", nil)
		w = httptest.NewRecorder()
		handler(w, req)

		var agent agents.Agent
		if err := json.NewDecoder(w.Body).Decode(&agent); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if agent.Status == agents.StatusActive {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Proxy kept serving the stale status after update")
}

func TestAgentsHandler_Deploy(t *testing.T) {
	_, handler := setupProxy(t)

	req := httptest.NewRequest("POST", "/api/v1/agents/deploy", strings.NewReader(`{"name": "db-watchdog", "layer": "database"}`))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var agent agents.Agent
	if err := json.NewDecoder(w.Body).Decode(&agent); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if agent.Name != "db-watchdog" {
		t.Errorf("Name = %q, want %q", agent.Name, "db-watchdog")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	promhttp.Handler().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(bodyStr, "agentquery_entries") {
		t.Error("Expected metrics output to contain agentquery_entries")
	}
}
