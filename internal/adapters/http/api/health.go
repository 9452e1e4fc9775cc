// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/pkg/metrics"
)

// StatusReporter exposes the model lifecycle state for health checks.
type StatusReporter interface {
	ModelStatus() engine.Status
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps StatusReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps StatusReporter) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// HandleHealth handles GET /healthz requests. The service is healthy as soon
// as it serves traffic; the model state rides along so probes can tell a
// warming instance from a broken one.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Model:  h.deps.ModelStatus().String(),
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// HandleMetrics handles GET /metrics requests.
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	// Use our custom metrics registry to serve metrics
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
