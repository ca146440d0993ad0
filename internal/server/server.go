// Package server exposes the resolution engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/server/handler"
	"github.com/gitadpal/voran/internal/server/middleware"
	"github.com/gitadpal/voran/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateLimitWindow per client IP; 0 disables.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Registry    *handler.RegistryHandler
	Specs       *handler.SpecHandler
	Resolutions *handler.ResolutionHandler
	Events      *handler.EventsHandler
	Archive     *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the routed, middleware-wrapped handler.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/registry", handlers.Registry.List)

	mux.HandleFunc("POST /api/specs/validate", handlers.Specs.Validate)
	mux.HandleFunc("POST /api/templates/expand", handlers.Specs.Expand)
	mux.HandleFunc("POST /api/templates/verify", handlers.Specs.Verify)

	mux.HandleFunc("POST /api/resolve", handlers.Resolutions.Resolve)
	mux.HandleFunc("POST /api/dry-run", handlers.Resolutions.DryRun)
	mux.HandleFunc("POST /api/payloads/verify", handlers.Resolutions.VerifyPayload)
	mux.HandleFunc("GET /api/resolutions", handlers.Resolutions.ListRecent)
	mux.HandleFunc("GET /api/resolutions/{marketId}", handlers.Resolutions.ListByMarket)

	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.List)
	}
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/raw", handlers.Archive.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
