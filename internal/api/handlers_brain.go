package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/go-chi/chi/v5"
)

// BrainHandler serves memories, errors, patterns and conversations.
type BrainHandler struct {
	loader *brain.Loader
}

// NewBrainHandler creates a BrainHandler.
func NewBrainHandler(loader *brain.Loader) *BrainHandler {
	return &BrainHandler{loader: loader}
}

type contextRequest struct {
	Query         string `json:"query"`
	MaxTokens     int    `json:"max_tokens"`
	SkipErrors    bool   `json:"skip_errors"`
	EnforceBudget bool   `json:"enforce_budget"`
}

// Context handles POST /api/brain/context.
func (h *BrainHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	c := h.loader.LoadContext(r.Context(), req.Query, nil, brain.LoadOptions{
		MaxTokens:     req.MaxTokens,
		SkipErrors:    req.SkipErrors,
		EnforceBudget: req.EnforceBudget,
	})
	writeJSON(w, http.StatusOK, map[string]any{"context": c, "formatted": brain.FormatContext(c)})
}

type memoryRequest struct {
	Content    string            `json:"content"`
	Summary    string            `json:"summary"`
	Type       memory.Type       `json:"type"`
	Scope      memory.Scope      `json:"scope"`
	Importance memory.Importance `json:"importance"`
	Tags       []string          `json:"tags"`
	AutoLoad   bool              `json:"auto_load"`
	IsPinned   bool              `json:"is_pinned"`
	Source     string            `json:"source"`
	Context    map[string]any    `json:"context"`
}

// AddMemory handles POST /api/brain/memories.
func (h *BrainHandler) AddMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Importance != "" && req.Importance.Rank() > 4 {
		writeError(w, http.StatusBadRequest, "unknown importance "+string(req.Importance))
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	id, err := h.loader.AddMemory(r.Context(), brain.MemoryInput{
		Content:    req.Content,
		Summary:    req.Summary,
		Type:       req.Type,
		Scope:      req.Scope,
		Importance: req.Importance,
		Tags:       req.Tags,
		AutoLoad:   req.AutoLoad,
		IsPinned:   req.IsPinned,
		Source:     req.Source,
		Context:    req.Context,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type patternRequest struct {
	Name          string   `json:"pattern_name"`
	Description   string   `json:"description"`
	Template      string   `json:"template"`
	ExampleInput  string   `json:"example_input"`
	ExampleOutput string   `json:"example_output"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
}

// AddPattern handles POST /api/brain/patterns.
func (h *BrainHandler) AddPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "pattern_name and description are required")
		return
	}

	id, err := h.loader.AddPattern(r.Context(), brain.PatternInput(req))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type errorRequest struct {
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	Solution     string         `json:"solution"`
	Context      map[string]any `json:"context"`
	Technology   []string       `json:"technology"`
	Tags         []string       `json:"tags"`
}

// TrackError handles POST /api/brain/errors. A near-duplicate answers 200
// with existing=true instead of 201.
func (h *BrainHandler) TrackError(w http.ResponseWriter, r *http.Request) {
	var req errorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ErrorType == "" || req.ErrorMessage == "" {
		writeError(w, http.StatusBadRequest, "error_type and error_message are required")
		return
	}

	res, err := h.loader.TrackError(r.Context(), brain.ErrorInput{
		ErrorType:    req.ErrorType,
		ErrorMessage: req.ErrorMessage,
		Solution:     req.Solution,
		Context:      req.Context,
		Technology:   req.Technology,
		Tags:         req.Tags,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// MarkSolved handles POST /api/brain/errors/{id}/solved.
func (h *BrainHandler) MarkSolved(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.loader.MarkErrorSolved(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "solved": true})
}

// CreateConversation handles POST /api/conversations.
func (h *BrainHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	id, err := h.loader.CreateConversation(r.Context(), req.Title)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Messages handles GET /api/conversations/{id}/messages?limit=N.
func (h *BrainHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := h.loader.ConversationHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

type messageRequest struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Model      string          `json:"model"`
	TokensUsed int             `json:"tokens_used"`
	ToolCalls  json.RawMessage `json:"tool_calls"`
}

var validRoles = map[string]bool{
	memory.RoleUser:      true,
	memory.RoleAssistant: true,
	memory.RoleSystem:    true,
	memory.RoleTool:      true,
}

// AddMessage handles POST /api/conversations/{id}/messages.
func (h *BrainHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validRoles[req.Role] {
		writeError(w, http.StatusBadRequest, "role must be one of user, assistant, system, tool")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	in := brain.MessageInput{
		Role:       req.Role,
		Content:    req.Content,
		Model:      req.Model,
		TokensUsed: req.TokensUsed,
	}
	if len(req.ToolCalls) > 0 {
		in.ToolCalls = req.ToolCalls
	}

	msg, err := h.loader.AddMessage(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
