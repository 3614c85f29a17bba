package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/marketplace-backend/internal/api/handlers"
	"github.com/eshaffer321/marketplace-backend/internal/api/middleware"
	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// ExportDir is served under /exports/ when set (local artifact store)
	ExportDir string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	bulk       *bulk.Service
	checks     map[string]handlers.Pinger
}

// NewServer creates a new API server. checks are probed by /health.
func NewServer(cfg Config, bulkService *bulk.Service, checks map[string]handlers.Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		bulk:   bulkService,
		checks: checks,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recover(s.logger))

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(s.checks)
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.config.ExportDir != "" {
		s.router.Handle("/exports/*", http.StripPrefix("/exports/", handlers.NewExportsHandler(s.config.ExportDir)))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Vendor)

		// Bulk operations
		if s.bulk != nil {
			bulkHandler := handlers.NewBulkHandler(s.bulk, s.logger)
			r.Post("/bulk-operations", bulkHandler.Submit)
			r.Get("/bulk-operations", bulkHandler.List)
			r.Get("/bulk-operations/{operationId}", bulkHandler.GetStatus)
			r.Delete("/bulk-operations/{operationId}", bulkHandler.Cancel)
		}
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
