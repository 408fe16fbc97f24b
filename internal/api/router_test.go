package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/integrations/github"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/service"
	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{ name string }

func (p echoProvider) Name() string { return p.name }

func (p echoProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Content: "echo: " + req.Prompt, Provider: p.name, Model: req.Model, TokensUsed: 3}, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()
	store, err := memory.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(ctx))

	loader := brain.NewLoader(brain.Config{Store: store, Embedder: fixedEmbedder{}, ProjectID: "p1"})
	router := llm.NewRouter(nil, echoProvider{name: llm.ProviderOpenAI})
	d := tools.NewDispatcher(tools.Deps{
		Loader:       loader,
		Router:       router,
		Integrations: map[string]bool{"openai": true, "github": false},
	})
	return Deps{
		Dispatcher: d,
		Chat:       service.NewChatService(loader, router, nil, nil),
		Loader:     loader,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	deps := newTestDeps(t)
	rec, out := do(t, NewRouter(deps), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "ok", out["checks"].(map[string]any)["database"])
	assert.Equal(t, true, out["integrations"].(map[string]any)["openai"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	qdrant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer qdrant.Close()

	deps := newTestDeps(t)
	deps.Qdrant = vectorstore.NewClient(qdrant.URL, "")
	rec, out := do(t, NewRouter(deps), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", out["status"])
	assert.Contains(t, out["checks"].(map[string]any)["qdrant"], "error")
}

func TestBearerAuth(t *testing.T) {
	deps := newTestDeps(t)
	deps.APIToken = "secret"
	h := NewRouter(deps)

	rec, _ := do(t, h, http.MethodGet, "/api/mcp/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/mcp/status", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out := do(t, h, http.MethodGet, "/api/mcp/status", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operational", out["status"])

	// Health stays open.
	rec, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	deps := newTestDeps(t)
	deps.RateLimitRPS = 0.001
	deps.RateLimitBurst = 1
	h := NewRouter(deps)

	rec, _ := do(t, h, http.MethodGet, "/api/mcp/tools", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	// The bucket is shared across routes.
	rec, _ = do(t, h, http.MethodGet, "/api/mcp/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	rec, _ := do(t, NewRouter(newTestDeps(t)), http.MethodOptions, "/api/chat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMCPCall(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	rec, out := do(t, h, http.MethodPost, "/api/mcp/call", map[string]any{
		"tool":      "web_search",
		"arguments": map[string]any{"query": "golang"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "golang", out["result"].(map[string]any)["query"])

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown tool", map[string]any{"tool": "nope"}, http.StatusBadRequest},
		{"missing tool", map[string]any{}, http.StatusBadRequest},
		{"bad json", "{not json", http.StatusBadRequest},
		{"missing argument", map[string]any{"tool": "knowledge_store", "arguments": map[string]any{}}, http.StatusBadRequest},
		{"unconfigured integration", map[string]any{"tool": "qdrant_list_collections"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, "/api/mcp/call", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestMCPCall_GitHubErrors(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer gh.Close()

	newHandler := func(owner, repo string) http.Handler {
		client, err := github.NewClient("token", owner, repo).WithBaseURL(gh.URL)
		require.NoError(t, err)
		deps := newTestDeps(t)
		deps.Dispatcher = tools.NewDispatcher(tools.Deps{GitHub: client})
		return NewRouter(deps)
	}

	rec, out := do(t, newHandler("nexify", "brain"), http.MethodPost, "/api/mcp/call", map[string]any{
		"tool": "github_get_file", "arguments": map[string]any{"path": "missing.md"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, out["error"])

	rec, _ = do(t, newHandler("", ""), http.MethodPost, "/api/mcp/call", map[string]any{
		"tool": "github_get_file", "arguments": map[string]any{"path": "README.md"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMCPTools(t *testing.T) {
	rec, out := do(t, NewRouter(newTestDeps(t)), http.MethodGet, "/api/mcp/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	defs := out["tools"].([]any)
	assert.Len(t, defs, int(out["count"].(float64)))
	assert.Equal(t, "ai_route", defs[0].(map[string]any)["name"])
}

func TestChatEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	h := NewRouter(deps)

	rec, out := do(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: hello", out["response"])
	convID := out["conversation_id"].(string)
	require.NotEmpty(t, convID)

	rec, out = do(t, h, http.MethodGet, "/api/conversations/"+convID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, out["count"])

	rec, _ = do(t, h, http.MethodPost, "/api/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "provider": llm.ProviderDeepSeek})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBrainEndpoints(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	rec, out := do(t, h, http.MethodPost, "/api/brain/memories", map[string]any{
		"content": "Always run gofmt", "type": "preference", "importance": "high", "is_pinned": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, out["id"])

	rec, _ = do(t, h, http.MethodPost, "/api/brain/memories", map[string]any{"content": "x", "importance": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = do(t, h, http.MethodPost, "/api/brain/context", map[string]any{"query": "formatting"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out["formatted"], "Always run gofmt")

	rec, out = do(t, h, http.MethodPost, "/api/brain/errors", map[string]any{
		"error_type": "TypeError", "error_message": "x is undefined", "solution": "define x",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	errID := out["id"].(string)

	rec, out = do(t, h, http.MethodPost, "/api/brain/errors", map[string]any{
		"error_type": "TypeError", "error_message": "x is undefined",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["existing"])
	assert.Equal(t, errID, out["id"])

	rec, _ = do(t, h, http.MethodPost, "/api/brain/errors/"+errID+"/solved", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/brain/errors/missing/solved", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, h, http.MethodPost, "/api/brain/patterns", map[string]any{
		"pattern_name": "table tests", "description": "Use table-driven tests",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, out["id"])
}

func TestConversationEndpoints(t *testing.T) {
	h := NewRouter(newTestDeps(t))

	rec, out := do(t, h, http.MethodPost, "/api/conversations", map[string]any{"title": "design"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := out["id"].(string)

	rec, out = do(t, h, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]any{
		"role": "user", "content": "first", "tool_calls": []any{map[string]any{"name": "web_search"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 1, out["sequence"])

	rec, _ = do(t, h, http.MethodPost, "/api/conversations/"+id+"/messages", map[string]any{"role": "robot", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/conversations/missing/messages", map[string]any{"role": "user", "content": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, h, http.MethodGet, "/api/conversations/"+id+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].(map[string]any)["content"])

	rec, _ = do(t, h, http.MethodGet, "/api/conversations/"+id+"/messages?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
