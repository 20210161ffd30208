package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/workers"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// StatsSource reports background worker statistics
type StatsSource interface {
	GetAllStats() []workers.WorkerStats
}

// HealthHandler reports the state of the service and its dependencies
type HealthHandler struct {
	checks  map[string]HealthCheck
	order   []string
	workers StatsSource
	logger  logger.Logger
}

// NewHealthHandler creates a health handler with no checks
func NewHealthHandler(workers StatsSource, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]HealthCheck),
		workers: workers,
		logger:  log,
	}
}

// AddCheck registers a named dependency check
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	if _, ok := h.checks[name]; !ok {
		h.order = append(h.order, name)
	}
	h.checks[name] = check
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string                `json:"status"`
	Dependencies map[string]string     `json:"dependencies"`
	Workers      []workers.WorkerStats `json:"workers,omitempty"`
}

// Health reports whether every dependency answers
// @Summary Health check
// @Description Ping Redis, Chroma and the model endpoint
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:       "healthy",
		Dependencies: make(map[string]string, len(h.checks)),
	}
	for _, name := range h.order {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("Health check %s failed: %v", name, err)
			resp.Dependencies[name] = "unhealthy"
			resp.Status = "unhealthy"
			continue
		}
		resp.Dependencies[name] = "healthy"
	}
	if h.workers != nil {
		resp.Workers = h.workers.GetAllStats()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, h.logger, status, resp)
}
