// Package api serves the brain over HTTP.
package api

import (
	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/service"
	"github.com/easeaico/brain-agent/internal/tools"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Deps are the services behind the routes. Qdrant is optional.
type Deps struct {
	Dispatcher *tools.Dispatcher
	Chat       *service.ChatService
	Loader     *brain.Loader
	Qdrant     *vectorstore.Client

	APIToken       string
	RateLimitRPS   float64
	RateLimitBurst int

	Logger *zap.Logger
}

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(deps Deps) *chi.Mux {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(deps.Logger))
	r.Use(Recovery(deps.Logger))

	healthH := NewHealthHandler(deps.Loader, deps.Qdrant, deps.Dispatcher)
	mcpH := NewMCPHandler(deps.Dispatcher)
	chatH := NewChatHandler(deps.Chat)
	brainH := NewBrainHandler(deps.Loader)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.APIToken))
		r.Use(RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))

		r.Route("/api/mcp", func(r chi.Router) {
			r.Post("/call", mcpH.Call)
			r.Get("/tools", mcpH.Tools)
			r.Get("/status", mcpH.Status)
		})

		r.Post("/api/chat", chatH.Chat)

		r.Route("/api/brain", func(r chi.Router) {
			r.Post("/context", brainH.Context)
			r.Post("/memories", brainH.AddMemory)
			r.Post("/patterns", brainH.AddPattern)
			r.Post("/errors", brainH.TrackError)
			r.Post("/errors/{id}/solved", brainH.MarkSolved)
		})

		r.Route("/api/conversations", func(r chi.Router) {
			r.Post("/", brainH.CreateConversation)
			r.Get("/{id}/messages", brainH.Messages)
			r.Post("/{id}/messages", brainH.AddMessage)
		})
	})

	return r
}
