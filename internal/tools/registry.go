package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DynamicTool is a runtime-registered tool that forwards its arguments to
// an HTTP endpoint.
type DynamicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Method      string         `json:"method"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Integration string         `json:"integration,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	apiKey string
}

func (t *DynamicTool) definition() Definition {
	def := Definition{Name: t.Name, Description: t.Description, Dynamic: true}
	if t.Integration != "" {
		def.Params = []Param{
			{"params", "object", "Query parameters", false},
			{"body", "object", "Request body", false},
		}
	}
	return def
}

// invoke calls the endpoint. Integration tools take {params, body}; plain
// registered tools send all arguments as the JSON body.
func (t *DynamicTool) invoke(ctx context.Context, client *http.Client, args json.RawMessage) (any, error) {
	target := t.Endpoint
	body := []byte(args)

	if t.Integration != "" {
		var in struct {
			Params map[string]any  `json:"params"`
			Body   json.RawMessage `json:"body"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}
		q := u.Query()
		for k, v := range in.Params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		target = u.String()
		body = in.Body
	}

	var reader io.Reader
	if len(body) > 0 && t.Method != http.MethodGet && t.Method != http.MethodHead {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, t.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", t.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", t.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data), nil
	}
	return out, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidArguments)
	}
	return u, nil
}

func normalizeMethod(m string) string {
	if m == "" {
		return http.MethodPost
	}
	return strings.ToUpper(m)
}

// Register adds or replaces a dynamic tool. Core tool names are rejected.
func (d *Dispatcher) Register(t DynamicTool) error {
	if err := required("name", t.Name); err != nil {
		return err
	}
	if d.IsCore(t.Name) {
		return fmt.Errorf("%w: %s is a core tool", ErrInvalidArguments, t.Name)
	}
	if _, err := parseEndpoint(t.Endpoint); err != nil {
		return err
	}
	t.Method = normalizeMethod(t.Method)
	if t.Description == "" {
		t.Description = t.Method + " " + t.Endpoint
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = d.now()
	}

	d.mu.Lock()
	d.dynamic[t.Name] = &t
	d.mu.Unlock()
	d.logger.Info("tool registered",
		zap.String("tool", t.Name),
		zap.String("method", t.Method),
		zap.String("endpoint", t.Endpoint))
	return nil
}

// Remove deletes a dynamic tool and reports whether it existed.
func (d *Dispatcher) Remove(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dynamic[name]; !ok {
		return false
	}
	delete(d.dynamic, name)
	return true
}

func (d *Dispatcher) registerTool(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Endpoint    string         `json:"endpoint"`
		Method      string         `json:"method"`
		InputSchema map[string]any `json:"input_schema"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	err := d.Register(DynamicTool{
		Name:        args.Name,
		Description: args.Description,
		Endpoint:    args.Endpoint,
		Method:      args.Method,
		InputSchema: args.InputSchema,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "tool": args.Name, "message": "Tool registered successfully"}, nil
}

func (d *Dispatcher) listRegisteredTools(context.Context, json.RawMessage) (any, error) {
	d.mu.RLock()
	dynamic := make([]string, 0, len(d.dynamic))
	for name := range d.dynamic {
		dynamic = append(dynamic, name)
	}
	d.mu.RUnlock()
	sort.Strings(dynamic)

	return map[string]any{
		"core_tools":    d.coreOrder,
		"dynamic_tools": dynamic,
		"total":         len(d.coreOrder) + len(dynamic),
	}, nil
}

func (d *Dispatcher) removeTool(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("name", args.Name); err != nil {
		return nil, err
	}
	if d.Remove(args.Name) {
		return map[string]any{"success": true, "message": fmt.Sprintf("Tool %s removed", args.Name)}, nil
	}
	return map[string]any{"success": false, "message": fmt.Sprintf("Tool %s not found or is a core tool", args.Name)}, nil
}

// Endpoint is one operation of an API integration.
type Endpoint struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (d *Dispatcher) addAPIIntegration(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Name      string     `json:"name"`
		BaseURL   string     `json:"base_url"`
		APIKey    string     `json:"api_key"`
		Endpoints []Endpoint `json:"endpoints"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("name", args.Name); err != nil {
		return nil, err
	}
	base, err := parseEndpoint(args.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(args.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: endpoints is required", ErrInvalidArguments)
	}

	registered := make([]string, 0, len(args.Endpoints))
	for _, ep := range args.Endpoints {
		if err := required("endpoint name", ep.Name); err != nil {
			return nil, err
		}
		ref, err := url.Parse(ep.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: endpoint %s: %v", ErrInvalidArguments, ep.Name, err)
		}
		method := normalizeMethod(firstNonEmpty(ep.Method, http.MethodGet))
		desc := ep.Description
		if desc == "" {
			desc = method + " " + ep.Path
		}

		name := args.Name + "_" + ep.Name
		err = d.Register(DynamicTool{
			Name:        name,
			Description: desc,
			Endpoint:    base.ResolveReference(ref).String(),
			Method:      method,
			Integration: args.Name,
			apiKey:      args.APIKey,
		})
		if err != nil {
			return nil, err
		}
		registered = append(registered, name)
	}

	return map[string]any{
		"success":          true,
		"integration":      args.Name,
		"tools_registered": registered,
	}, nil
}
