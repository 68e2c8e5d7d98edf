package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/common"
	"github.com/ternarybob/conveyor/internal/handlers"
)

// Server manages the HTTP server and routes
type Server struct {
	config        *common.Config
	logger        arbor.ILogger
	router        *http.ServeMux
	server        *http.Server
	jobHandler    *handlers.JobHandler
	statusHandler *handlers.StatusHandler
	wsHandler     *handlers.WebSocketHandler
}

// New creates a new HTTP server with the given handlers
func New(config *common.Config, logger arbor.ILogger, jobHandler *handlers.JobHandler, statusHandler *handlers.StatusHandler, wsHandler *handlers.WebSocketHandler) *Server {
	s := &Server{
		config:        config,
		logger:        logger,
		jobHandler:    jobHandler,
		statusHandler: statusHandler,
		wsHandler:     wsHandler,
	}

	// Setup routes
	s.router = s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.logger.Info().
		Str("address", addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
