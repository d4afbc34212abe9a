// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AtRiskMedia/splittest-go/internal/application/container"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/routes"
)

// Server wraps the HTTP server with configuration and dependency injection
type Server struct {
	httpServer *http.Server
	container  *container.Container
}

// New creates a new HTTP server instance with dependency injection
func New(container *container.Container) *Server {
	settings := container.Settings
	router := routes.SetupRoutes(container)

	httpServer := &http.Server{
		Addr:         ":" + settings.Port,
		Handler:      router,
		ReadTimeout:  settings.ServerReadTimeout,
		WriteTimeout: settings.ServerWriteTimeout,
		IdleTimeout:  settings.ServerIdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		container:  container,
	}
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.container.Logger.Startup().Info("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.Shutdown().Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
