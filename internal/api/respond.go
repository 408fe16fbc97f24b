package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/easeaico/brain-agent/internal/integrations/github"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/service"
	"github.com/easeaico/brain-agent/internal/tools"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tools.ErrUnknownTool),
		errors.Is(err, tools.ErrInvalidArguments),
		errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, github.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, llm.ErrProviderNotConfigured),
		errors.Is(err, tools.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
