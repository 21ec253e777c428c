package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/clinical-search/internal/core/ports/driving"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger

	// Services
	schemaService driving.SchemaService
	writer        driving.DocumentWriter
	queryService  driving.QueryService
	healthService driving.HealthService
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	schemaService driving.SchemaService,
	writer driving.DocumentWriter,
	queryService driving.QueryService,
	healthService driving.HealthService,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		logger:        logger.With("component", "http"),
		schemaService: schemaService,
		writer:        writer,
		queryService:  queryService,
		healthService: healthService,
	}

	s.setupRoutes()

	s.handler = Chain(s.router,
		WithRequestID(),
		WithAccessLog(s.logger),
		WithRecovery(s.logger),
		WithCORS(cfg.AllowedOrigins),
	)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Index endpoints (read-only)
	s.router.HandleFunc("GET /api/v1/indices/{index}/mapping", s.handleGetMapping)
	s.router.HandleFunc("GET /api/v1/indices/{index}/documents/{id}", s.handleGetDocument)
	s.router.HandleFunc("GET /api/v1/indices/{index}/filter", s.handleFilter)
	s.router.HandleFunc("POST /api/v1/indices/{index}/similar", s.handleSimilar)

	// Write endpoints
	s.router.HandleFunc("POST /api/v1/patients", s.handleWritePatient)
	s.router.HandleFunc("POST /api/v1/patients/{id}/deactivate", s.handleDeactivatePatient)
	s.router.HandleFunc("POST /api/v1/appointments", s.handleWriteAppointment)
	s.router.HandleFunc("POST /api/v1/medical-cases", s.handleWriteMedicalCase)
	s.router.HandleFunc("GET /api/v1/medical-cases/{id}/history", s.handleCaseHistory)
	s.router.HandleFunc("POST /api/v1/medical-records", s.handleWriteMedicalRecord)
	s.router.HandleFunc("POST /api/v1/agent-logs", s.handleWriteAgentLog)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server error", goerr.V("addr", s.httpServer.Addr))
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "server shutdown failed")
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
