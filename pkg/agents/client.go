// Package agents provides the data-access layer for the agents resource:
// a REST client for the agents API plus cache-backed query bindings.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for agents API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_api_requests_total",
		Help: "Total agents API requests by operation and status",
	}, []string{"operation", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agents_api_request_duration_seconds",
		Help:    "Agents API request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agents_api_errors_total",
		Help: "Total agents API errors by class",
	}, []string{"class"})
)

const apiBasePath = "/api/v1/agents"

// Config holds the agents client configuration.
type Config struct {
	// BaseURL is the root of the backend, e.g. "https://api.example.com".
	BaseURL string

	// APIToken is sent as a bearer token when set.
	APIToken string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of attempts for idempotent reads.
	// Writes are never retried.
	MaxRetries int

	// InitialBackoff is the starting backoff between retries.
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Client is the HTTP client for the agents API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new agents API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "agents-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// List fetches all agents visible to the caller.
func (c *Client) List(ctx context.Context) ([]Agent, error) {
	var out []Agent
	err := retryWithBackoff(ctx, c.logger, c.config.MaxRetries, c.config.InitialBackoff, func() error {
		return c.do(ctx, "list", http.MethodGet, apiBasePath+"/", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a single agent by ID.
func (c *Client) Get(ctx context.Context, id string) (*Agent, error) {
	var out Agent
	err := retryWithBackoff(ctx, c.logger, c.config.MaxRetries, c.config.InitialBackoff, func() error {
		return c.do(ctx, "get", http.MethodGet, fmt.Sprintf("%s/%s", apiBasePath, url.PathEscape(id)), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Create deploys a new agent and returns it.
func (c *Client) Create(ctx context.Context, params DeployParams) (*Agent, error) {
	var out DeployResult
	if err := c.do(ctx, "create", http.MethodPost, apiBasePath+"/deploy", params, &out); err != nil {
		return nil, err
	}
	return &out.Agent, nil
}

// UpdateStatus changes an agent's status (start/stop/pause).
func (c *Client) UpdateStatus(ctx context.Context, id string, status AgentStatus) (*StatusUpdateResult, error) {
	var out StatusUpdateResult
	path := fmt.Sprintf("%s/%s/status", apiBasePath, url.PathEscape(id))
	if err := c.do(ctx, "update_status", http.MethodPut, path, StatusUpdate{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an agent.
func (c *Client) Delete(ctx context.Context, id string) error {
	var out DeleteResult
	path := fmt.Sprintf("%s/%s", apiBasePath, url.PathEscape(id))
	return c.do(ctx, "delete", http.MethodDelete, path, nil, &out)
}

// do performs one HTTP request against the agents API, decoding a JSON
// response into out. Failures are returned as *TransportError.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		c.logger.Error().Err(err).Str("operation", operation).Msg("HTTP request failed")
		return &TransportError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(class)).Inc()
		msg := readErrorDetail(resp.Body)
		c.logger.Warn().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Agents API request error")
		return &TransportError{StatusCode: resp.StatusCode, Class: class, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassServer,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return nil
}

// readErrorDetail extracts the FastAPI-style {"detail": "..."} message from
// an error response, falling back to the raw body.
func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return string(raw)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
