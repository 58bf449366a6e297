package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/records", s.handleListRecords)

		r.Route("/sidecars", func(r chi.Router) {
			r.Get("/", s.handleListSidecars)
			r.Put("/{sourceFile}", s.handleEditSidecar)
		})

		r.Post("/aggregate", s.handleAggregate)
		r.Get("/runs", s.handleListRuns)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// healthCheckTimeout bounds each backend check made by /health.
const healthCheckTimeout = 2 * time.Second

// Health status values reported by /health.
const (
	healthOK        = "ok"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /health. Checks maps each configured
// backend to "ok" or its error text.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth checks the configured backends. A failing database makes the
// service unhealthy (503); a failing broker or InfluxDB only degrades it,
// since aggregation still works without them.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: healthOK, Version: s.version, Checks: map[string]string{}}
	status := http.StatusOK

	check := func(name string, hc HealthChecker, critical bool) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			resp.Checks[name] = err.Error()
			if critical {
				resp.Status = healthUnhealthy
				status = http.StatusServiceUnavailable
			} else if resp.Status == healthOK {
				resp.Status = healthDegraded
			}
			return
		}
		resp.Checks[name] = healthOK
	}

	if s.db != nil {
		check("database", s.db, true)
	}
	if s.events != nil {
		check("mqtt", s.events, false)
	}
	if s.influx != nil {
		check("influxdb", s.influx, false)
	}

	writeJSON(w, status, resp)
}
