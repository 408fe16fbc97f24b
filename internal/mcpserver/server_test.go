package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpc sends one JSON-RPC request and returns the decoded response.
func rpc(t *testing.T, s *Server, id int, method string, params any) map[string]any {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})
	require.NoError(t, err)

	resp := s.MCP().HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Nil(t, out["error"], "unexpected error: %v", out["error"])
	return out["result"].(map[string]any)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	d := tools.NewDispatcher(tools.Deps{Integrations: map[string]bool{"openai": true}})
	s := New(d, nil)
	rpc(t, s, 0, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "1.0.0"},
	})
	return s
}

func toolNames(t *testing.T, s *Server) []string {
	t.Helper()
	res := rpc(t, s, 1, "tools/list", map[string]any{})
	var names []string
	for _, tl := range res["tools"].([]any) {
		names = append(names, tl.(map[string]any)["name"].(string))
	}
	return names
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)
	names := toolNames(t, s)
	assert.Contains(t, names, "web_search")
	assert.Contains(t, names, "brain_context")
	assert.Contains(t, names, "github_update_file")
}

func TestToolSchema(t *testing.T) {
	tl := toolFromDefinition(tools.Definition{
		Name:        "t",
		Description: "d",
		Params: []tools.Param{
			{Name: "q", Type: "string", Required: true},
			{Name: "n", Type: "number"},
		},
	})
	assert.Equal(t, []string{"q"}, tl.InputSchema.Required)
	assert.Contains(t, tl.InputSchema.Properties, "n")
}

func TestToolsCall(t *testing.T) {
	s := newTestServer(t)

	res := rpc(t, s, 2, "tools/call", map[string]any{
		"name":      "web_search",
		"arguments": map[string]any{"query": "mcp"},
	})
	content := res["content"].([]any)[0].(map[string]any)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(content["text"].(string)), &body))
	assert.Equal(t, "Web search coming soon", body["message"])

	res = rpc(t, s, 3, "tools/call", map[string]any{"name": "error_solved", "arguments": map[string]any{}})
	assert.Equal(t, true, res["isError"])
}

func TestDynamicToolsAreMirrored(t *testing.T) {
	s := newTestServer(t)

	rpc(t, s, 2, "tools/call", map[string]any{
		"name":      "register_tool",
		"arguments": map[string]any{"name": "weather", "endpoint": "https://example.com/weather"},
	})
	assert.Contains(t, toolNames(t, s), "weather")

	rpc(t, s, 3, "tools/call", map[string]any{"name": "remove_tool", "arguments": map[string]any{"name": "weather"}})
	assert.NotContains(t, toolNames(t, s), "weather")
}

func TestResources(t *testing.T) {
	s := newTestServer(t)

	res := rpc(t, s, 2, "resources/read", map[string]any{"uri": statusURI})
	contents := res["contents"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/json", contents["mimeType"])

	var status tools.Status
	require.NoError(t, json.Unmarshal([]byte(contents["text"].(string)), &status))
	assert.Equal(t, "operational", status.Status)
	assert.True(t, status.Integrations["openai"])

	res = rpc(t, s, 3, "resources/read", map[string]any{"uri": toolsURI})
	contents = res["contents"].([]any)[0].(map[string]any)
	var defs []tools.Definition
	require.NoError(t, json.Unmarshal([]byte(contents["text"].(string)), &defs))
	assert.NotEmpty(t, defs)
}
