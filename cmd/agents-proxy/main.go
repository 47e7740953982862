package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/integraitepro/agentquery/pkg/agents"
	"github.com/integraitepro/agentquery/pkg/logging"
	"github.com/integraitepro/agentquery/pkg/query"
)

func main() {
	backendURL := getEnv("BACKEND_URL", "http://localhost:8000")
	port := getEnv("PORT", "8080")
	logLevel := getEnv("LOG_LEVEL", "info")
	apiToken := getEnv("API_TOKEN", "")
	staleTime := getDurationEnv("STALE_TIME", 30*time.Second)

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})
	logger := logging.NewLogger("agents-proxy")

	cfg := agents.DefaultConfig(backendURL)
	cfg.APIToken = apiToken
	apiClient, err := agents.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create agents client")
	}

	qc := query.New(query.Options{})
	defer qc.Close()

	queries := agents.NewQueries(apiClient, qc)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/agents/", agentsHandler(queries, staleTime, logger))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("backend", backendURL).
		Dur("stale_time", staleTime).
		Msg("Starting agents proxy server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// agentsHandler routes the agents endpoints. Reads go through the query
// cache; writes hit the backend directly and invalidate the affected keys.
func agentsHandler(q *agents.Queries, staleTime time.Duration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agents"), "/")

		switch {
		case r.Method == http.MethodGet && rest == "":
			list, err := q.ListAgents(r.Context(), staleTime)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		case r.Method == http.MethodPost && rest == "deploy":
			var params agents.DeployParams
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid payload"})
				return
			}
			agent, err := q.CreateAgent(r.Context(), params)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, agent)

		case r.Method == http.MethodPut && strings.HasSuffix(rest, "/status"):
			id := strings.TrimSuffix(rest, "/status")
			var body agents.StatusUpdate
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid payload"})
				return
			}
			result, err := q.UpdateAgentStatus(r.Context(), id, body.Status)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, result)

		case r.Method == http.MethodDelete && rest != "":
			if err := q.DeleteAgent(r.Context(), rest); err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "agentId": rest})

		case r.Method == http.MethodGet && rest != "":
			agent, err := q.GetAgent(r.Context(), rest, staleTime)
			if err != nil {
				writeError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, agent)

		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps backend failures to proxy responses, preserving the
// backend's status code where one is known.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := http.StatusBadGateway
	var terr *agents.TransportError
	if errors.As(err, &terr) && terr.StatusCode >= 400 {
		status = terr.StatusCode
	} else if errors.Is(err, agents.ErrNotFound) {
		status = http.StatusNotFound
	}

	logger.Warn().Err(err).Int("status", status).Msg("Backend request failed")
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
