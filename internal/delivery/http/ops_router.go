package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fxhedz/internal/metrics"
)

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// OpsConfig holds dependencies for the operations router
type OpsConfig struct {
	Metrics     *metrics.Registry // nil disables /metrics
	MetricsPath string
	Checks      map[string]HealthCheck
	Version     string
}

// NewOpsRouter serves health and metrics on the internal port
func NewOpsRouter(config *OpsConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", handleHealth(config))

	if config.Metrics != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(config.Metrics, promhttp.HandlerOpts{}))
	}

	return r
}

func handleHealth(config *OpsConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		deps := make(map[string]string, len(config.Checks))
		for name, check := range config.Checks {
			if err := check(ctx); err != nil {
				deps[name] = "unhealthy"
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       status,
			"service":      "fxhedz",
			"version":      config.Version,
			"dependencies": deps,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
