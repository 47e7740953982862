// Package testutil provides testing utilities for the agents query runtime.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// AgentFixture is the mutable server-side state for one agent.
type AgentFixture struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Layer  string `json:"layer"`
}

// MockAPI is a configurable mock agents backend for testing. It serves the
// agents REST endpoints with in-memory fixtures and tracks calls per
// method+path so tests can assert fetch counts.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	agents   map[string]*AgentFixture
	order    []string

	RequestCount int
	callCounts   map[string]int
	LastHeader   http.Header
}

// NewMockAPI creates a new mock agents server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		agents:     make(map[string]*AgentFixture),
		callCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.callCounts[r.Method+" "+r.URL.Path]++
		mock.LastHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and fixtures.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.callCounts = make(map[string]int)
	m.LastHeader = nil
	m.agents = make(map[string]*AgentFixture)
	m.order = nil
}

// AddAgent registers a fixture served by the default handlers.
func (m *MockAPI) AddAgent(a AgentFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[a.ID]; !exists {
		m.order = append(m.order, a.ID)
	}
	m.agents[a.ID] = &a
}

// CallCount returns how many requests hit the given method and path.
func (m *MockAPI) CallCount(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method+" "+path]
}

// GetRequestCount returns the total number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific method and path,
// overriding the default fixture-backed behavior.
func (m *MockAPI) SetHandler(method, path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a canned response for a method and path.
func (m *MockAPI) SetResponse(method, path string, resp MockResponse) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if resp.Headers["Content-Type"] == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// defaultHandler serves the agents REST endpoints from the fixtures.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	const base = "/api/v1/agents"
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case r.Method == http.MethodGet && path == base:
		m.handleList(w)
	case r.Method == http.MethodPost && path == base+"/deploy":
		m.handleDeploy(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, base+"/") && strings.HasSuffix(path, "/status"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, base+"/"), "/status")
		m.handleStatus(w, r, id)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, base+"/"):
		m.handleDelete(w, strings.TrimPrefix(path, base+"/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, base+"/"):
		m.handleGet(w, strings.TrimPrefix(path, base+"/"))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not Found"}`))
	}
}

func (m *MockAPI) handleList(w http.ResponseWriter) {
	m.mu.RLock()
	list := make([]*AgentFixture, 0, len(m.order))
	for _, id := range m.order {
		if a, ok := m.agents[id]; ok {
			list = append(list, a)
		}
	}
	m.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(list)
}

func (m *MockAPI) handleGet(w http.ResponseWriter, id string) {
	m.mu.RLock()
	a, ok := m.agents[id]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"detail": "Agent %s not found"}`, id)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(a)
}

func (m *MockAPI) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var params struct {
		Name  string `json:"name"`
		Layer string `json:"layer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "invalid payload"}`))
		return
	}

	m.mu.Lock()
	id := fmt.Sprintf("agent-%08d", len(m.agents)+1)
	a := &AgentFixture{ID: id, Name: params.Name, Type: "custom", Status: "deploying", Layer: params.Layer}
	m.agents[id] = a
	m.order = append(m.order, id)
	m.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Agent deployment initiated",
		"agent":   a,
	})
}

func (m *MockAPI) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "invalid payload"}`))
		return
	}

	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		a.Status = body.Status
	}
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"detail": "Agent %s not found"}`, id)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"message":   "Agent status updated",
		"agentId":   id,
		"newStatus": body.Status,
		"updatedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *MockAPI) handleDelete(w http.ResponseWriter, id string) {
	m.mu.Lock()
	_, ok := m.agents[id]
	delete(m.agents, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"detail": "Agent %s not found"}`, id)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"message":   "Agent deleted",
		"agentId":   id,
		"deletedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail": "Internal server error"}`,
	}
}

// NewNotFoundResponse creates a 404 response with a FastAPI-style detail.
func NewNotFoundResponse(id string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf(`{"detail": "Agent %s not found"}`, id),
	}
}

// FlakyHandler fails the first n requests with a 500, then delegates to the
// default fixture-backed behavior.
func (m *MockAPI) FlakyHandler(method, path string, failures int) {
	var mu sync.Mutex
	remaining := failures
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()

		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail": "transient failure"}`))
			return
		}
		m.defaultHandler(w, r)
	})
}
