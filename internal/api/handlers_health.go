package api

import (
	"context"
	"net/http"
	"time"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/easeaico/brain-agent/internal/vectorstore"
)

const healthTimeout = 3 * time.Second

// HealthHandler reports backend reachability.
type HealthHandler struct {
	loader     *brain.Loader
	qdrant     *vectorstore.Client
	dispatcher *tools.Dispatcher
}

// NewHealthHandler creates a HealthHandler. qdrant and dispatcher may be nil.
func NewHealthHandler(loader *brain.Loader, qdrant *vectorstore.Client, dispatcher *tools.Dispatcher) *HealthHandler {
	return &HealthHandler{loader: loader, qdrant: qdrant, dispatcher: dispatcher}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Timestamp    string            `json:"timestamp"`
	Checks       map[string]string `json:"checks"`
	Integrations map[string]bool   `json:"integrations,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Version:   tools.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}

	if h.loader != nil {
		if err := h.loader.Store().Ping(ctx); err != nil {
			resp.Checks["database"] = "error: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.Checks["database"] = "ok"
		}
	}

	if h.qdrant != nil {
		if err := h.qdrant.HealthCheck(ctx); err != nil {
			resp.Checks["qdrant"] = "error: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.Checks["qdrant"] = "ok"
		}
	}

	if h.dispatcher != nil {
		resp.Integrations = h.dispatcher.Status().Integrations
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
