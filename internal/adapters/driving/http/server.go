package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
)

// DefaultStreamIdleTimeout drops a progress stream that has seen no event for this long
const DefaultStreamIdleTimeout = 60 * time.Second

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	catalog  driven.SourceCatalog
	tracker  driving.TaskTracker
	verifier driven.TokenVerifier // nil disables authentication

	// Infrastructure
	metrics           http.Handler      // Prometheus exposition (optional)
	checks            map[string]Pinger // readiness dependencies
	streamIdleTimeout time.Duration
	allowedOrigins    []string
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	Version           string
	StreamIdleTimeout time.Duration
	AllowedOrigins    []string
	Logger            *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		Version:           "dev",
		StreamIdleTimeout: DefaultStreamIdleTimeout,
	}
}

// Deps are the services the server exposes
type Deps struct {
	Catalog  driven.SourceCatalog
	Tracker  driving.TaskTracker
	Verifier driven.TokenVerifier
	Metrics  http.Handler
	Checks   map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := cfg.StreamIdleTimeout
	if idle <= 0 {
		idle = DefaultStreamIdleTimeout
	}

	s := &Server{
		router:            http.NewServeMux(),
		version:           cfg.Version,
		logger:            logger,
		catalog:           deps.Catalog,
		tracker:           deps.Tracker,
		verifier:          deps.Verifier,
		metrics:           deps.Metrics,
		checks:            deps.Checks,
		streamIdleTimeout: idle,
		allowedOrigins:    cfg.AllowedOrigins,
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Streams lift their own write deadline
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.verifier)
	admin := func(h http.HandlerFunc) http.Handler {
		if s.verifier == nil {
			return h
		}
		return authMiddleware.Authenticate(authMiddleware.RequireAdmin(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}

	// Source endpoints
	s.router.Handle("GET /api/v1/sources", admin(s.handleListSources))
	s.router.Handle("GET /api/v1/sources/{id}", admin(s.handleGetSource))

	// Sync endpoints (admin-only)
	s.router.Handle("POST /api/v1/sources/{id}/sync", admin(s.handleTriggerSync))
	s.router.Handle("POST /api/v1/sync", admin(s.handleTriggerSyncAll))
	s.router.Handle("GET /api/v1/sync/tasks/{id}", admin(s.handleGetTask))
	s.router.Handle("GET /api/v1/sync/tasks/{id}/stream", admin(s.handleStreamTask))
}

// Handler returns the router wrapped with recovery, logging and CORS.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewCORSMiddleware(s.allowedOrigins).Handler(h)
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	return h
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
