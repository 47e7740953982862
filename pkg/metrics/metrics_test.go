package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/integraitepro/agentquery/pkg/query"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestQueryMetricsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"agentquery_fetch_dedup_total",
		"agentquery_cache_hits_total",
		"agentquery_cache_misses_total",
		"agentquery_invalidations_total",
		"agentquery_active_subscriptions",
		"agentquery_entries",
	} {
		if !names[want] {
			t.Errorf("metric %q not registered", want)
		}
	}
}
