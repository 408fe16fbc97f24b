package api

import (
	"net/http"

	"github.com/easeaico/brain-agent/internal/tools"
)

// MCPHandler exposes the tool dispatcher over HTTP.
type MCPHandler struct {
	dispatcher *tools.Dispatcher
}

// NewMCPHandler creates an MCPHandler.
func NewMCPHandler(d *tools.Dispatcher) *MCPHandler {
	return &MCPHandler{dispatcher: d}
}

// Call handles POST /api/mcp/call.
func (h *MCPHandler) Call(w http.ResponseWriter, r *http.Request) {
	var call tools.Call
	if err := decodeJSON(w, r, &call); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), call)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// Tools handles GET /api/mcp/tools.
func (h *MCPHandler) Tools(w http.ResponseWriter, r *http.Request) {
	defs := h.dispatcher.Definitions()
	writeJSON(w, http.StatusOK, map[string]any{"tools": defs, "count": len(defs)})
}

// Status handles GET /api/mcp/status.
func (h *MCPHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.Status())
}
