// Package tools implements the brain's tool surface: a flat dispatch table
// shared by the HTTP API and the MCP server, and the ADK function tools used
// by the agent.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/integrations/github"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"go.uber.org/zap"
)

// Version is reported by system_status.
const Version = "1.0.0"

var (
	// ErrUnknownTool is returned by Dispatch for names that are neither core
	// nor registered tools.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when a call's arguments cannot be
	// decoded or miss a required field.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrNotConfigured is returned when a tool's backing service has no
	// credentials.
	ErrNotConfigured = errors.New("integration not configured")
)

// Call is a single tool invocation.
type Call struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Param describes one tool argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, boolean, object, array
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Definition describes a tool for listings and MCP schemas.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
	Dynamic     bool    `json:"dynamic,omitempty"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type coreTool struct {
	def    Definition
	handle handlerFunc
}

// Deps are the services the core tools call. Nil services make their tools
// return ErrNotConfigured.
type Deps struct {
	Loader       *brain.Loader
	Router       *llm.Router
	Embedder     llm.Embedder
	Qdrant       *vectorstore.Client
	GitHub       *github.Client
	Integrations map[string]bool
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Dispatcher maps tool names to handlers. Core tools are fixed at
// construction; dynamic tools can be registered and removed at runtime.
type Dispatcher struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	core      map[string]coreTool
	coreOrder []string

	mu      sync.RWMutex
	dynamic map[string]*DynamicTool
}

// NewDispatcher creates a dispatcher with every core tool installed.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	d := &Dispatcher{
		deps:    deps,
		logger:  deps.Logger,
		now:     time.Now,
		core:    make(map[string]coreTool),
		dynamic: make(map[string]*DynamicTool),
	}
	for _, t := range d.coreTools() {
		d.core[t.def.Name] = t
		d.coreOrder = append(d.coreOrder, t.def.Name)
	}
	return d
}

// Dispatch runs a tool by name.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (any, error) {
	args := call.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	if t, ok := d.core[call.Tool]; ok {
		return d.run(ctx, call.Tool, func() (any, error) { return t.handle(ctx, args) })
	}

	d.mu.RLock()
	dyn, ok := d.dynamic[call.Tool]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", call.Tool, ErrUnknownTool)
	}
	return d.run(ctx, call.Tool, func() (any, error) { return dyn.invoke(ctx, d.deps.HTTPClient, args) })
}

func (d *Dispatcher) run(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	start := d.now()
	result, err := fn()
	if err != nil {
		d.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	d.logger.Debug("tool call", zap.String("tool", name), zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Definitions lists core tools in registration order followed by dynamic
// tools sorted by name.
func (d *Dispatcher) Definitions() []Definition {
	defs := make([]Definition, 0, len(d.coreOrder))
	for _, name := range d.coreOrder {
		defs = append(defs, d.core[name].def)
	}

	d.mu.RLock()
	dynamic := make([]Definition, 0, len(d.dynamic))
	for _, t := range d.dynamic {
		dynamic = append(dynamic, t.definition())
	}
	d.mu.RUnlock()

	sort.Slice(dynamic, func(i, j int) bool { return dynamic[i].Name < dynamic[j].Name })
	return append(defs, dynamic...)
}

// Counts returns the number of core and dynamic tools.
func (d *Dispatcher) Counts() (core, dynamic int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.core), len(d.dynamic)
}

// IsCore reports whether name is a built-in tool.
func (d *Dispatcher) IsCore(name string) bool {
	_, ok := d.core[name]
	return ok
}

// decodeArgs unmarshals tool arguments into dst.
func decodeArgs(args json.RawMessage, dst any) error {
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArguments, name)
	}
	return nil
}
