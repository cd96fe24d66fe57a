package api

import (
	"encoding/json"
	"net/http"

	"github.com/heysubinoy/opus/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns current store metrics as JSON.
func MetricsHandler(instrumentedStore *store.InstrumentedStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := instrumentedStore.GetMetrics()

		operations := make(map[string]uint64, len(metrics.Ops))
		errs := make(map[string]uint64, len(metrics.Ops))
		latency := make(map[string]string, len(metrics.Ops))
		for _, op := range metrics.Ops {
			operations[op.Op] = op.Count
			errs[op.Op] = op.Errors
			latency[op.Op] = op.AvgLatency.String()
		}

		response := map[string]interface{}{
			"keys":        metrics.Keys,
			"operations":  operations,
			"errors":      errs,
			"avg_latency": latency,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// PrometheusHandler serves reg in the Prometheus exposition format.
func PrometheusHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
