package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mount registers the health and metrics endpoints on r.
func Mount(r chi.Router, monitor *Monitor) {
	r.Get("/health", handleHealth(monitor))
	r.Get("/health/detailed", handleDetailed(monitor))
	r.Handle("/metrics", promhttp.Handler())
}

func handleHealth(monitor *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := monitor.CheckHealth(r.Context())

		response := map[string]string{"status": string(report.SystemStatus)}
		w.Header().Set("Content-Type", "application/json")

		if report.SystemStatus == StatusCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

func handleDetailed(monitor *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := monitor.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}
