// Package mcpserver exposes the tool dispatcher as a Model Context Protocol
// server over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	serverName = "brain-agent"

	statusURI = "brain://status"
	toolsURI  = "brain://tools"
)

// Server adapts a tools.Dispatcher to MCP.
type Server struct {
	mcp        *server.MCPServer
	dispatcher *tools.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	dynamic map[string]bool
}

// New creates an MCP server with every dispatcher tool and the status and
// tool-listing resources.
func New(d *tools.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp: server.NewMCPServer(serverName, tools.Version,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, true),
			server.WithLogging(),
		),
		dispatcher: d,
		logger:     logger,
		dynamic:    make(map[string]bool),
	}

	for _, def := range d.Definitions() {
		s.mcp.AddTool(toolFromDefinition(def), s.handleCall)
		if def.Dynamic {
			s.dynamic[def.Name] = true
		}
	}

	s.mcp.AddResource(
		mcp.NewResource(statusURI, "System status",
			mcp.WithResourceDescription("Tool counts and configured integrations"),
			mcp.WithMIMEType("application/json")),
		s.jsonResource(statusURI, func() any { return d.Status() }),
	)
	s.mcp.AddResource(
		mcp.NewResource(toolsURI, "Tools",
			mcp.WithResourceDescription("Core and dynamic tool definitions"),
			mcp.WithMIMEType("application/json")),
		s.jsonResource(toolsURI, func() any { return d.Definitions() }),
	)
	return s
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves until stdin closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio", zap.Int("tools", len(s.dispatcher.Definitions())))
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	result, err := s.dispatcher.Dispatch(ctx, tools.Call{Tool: req.Params.Name, Arguments: raw})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.syncDynamic()

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// syncDynamic mirrors registry changes made through tool calls into the
// MCP tool list.
func (s *Server) syncDynamic() {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool)
	for _, def := range s.dispatcher.Definitions() {
		if !def.Dynamic {
			continue
		}
		current[def.Name] = true
		if !s.dynamic[def.Name] {
			s.mcp.AddTool(toolFromDefinition(def), s.handleCall)
		}
	}

	var removed []string
	for name := range s.dynamic {
		if !current[name] {
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		s.mcp.DeleteTools(removed...)
	}
	s.dynamic = current
}

func (s *Server) jsonResource(uri string, value func() any) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(value(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
		}, nil
	}
}

func toolFromDefinition(def tools.Definition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	for _, p := range def.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case "number":
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		case "object":
			opts = append(opts, mcp.WithObject(p.Name, props...))
		case "array":
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(def.Name, opts...)
}
