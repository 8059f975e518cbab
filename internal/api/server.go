// Package api exposes the analysis engine over a local HTTP server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"histlens/internal/auth"
	"histlens/internal/cache"
	"histlens/internal/config"
	"histlens/internal/logging"
	"histlens/internal/orchestrator"
	"histlens/internal/routing"
	"histlens/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	router *http.ServeMux
	server *http.Server
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	events *routing.Router
	cache  *cache.Cache
	db     *storage.DB
	tokens *auth.Store
	hub    *eventHub
	logger *logging.Logger
}

// Options wires a server. DB and Tokens may be nil; the metrics and
// auth endpoints then report unavailable.
type Options struct {
	Config *config.Config
	Orch   *orchestrator.Orchestrator
	Events *routing.Router
	Cache  *cache.Cache
	DB     *storage.DB
	Tokens *auth.Store
	Logger *logging.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:    opts.Config,
		orch:   opts.Orch,
		events: opts.Events,
		cache:  opts.Cache,
		db:     opts.DB,
		tokens: opts.Tokens,
		hub:    newEventHub(),
		logger: opts.Logger,
		router: http.NewServeMux(),
	}

	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         opts.Config.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // long-poll responses
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.cfg.Server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", nil)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	if s.cfg.Server.AuthEnabled {
		handler = AuthMiddleware(s.tokens, s.logger)(handler)
	}
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)

	s.router.HandleFunc("/analyze/commit", s.handleAnalyzeCommit)
	s.router.HandleFunc("/analyze/compare", s.handleAnalyzeCompare)
	s.router.HandleFunc("/analyze/file-history", s.handleAnalyzeFileHistory)
	s.router.HandleFunc("/analyze/file-compare", s.handleAnalyzeFileCompare)

	s.router.HandleFunc("/events/", s.handleEvents) // GET /events/:requestId

	s.router.HandleFunc("/cache/stats", s.handleCacheStats)
	s.router.HandleFunc("/cache/clear", s.handleCacheClear)

	s.router.HandleFunc("/metrics", s.handleMetrics)
}
