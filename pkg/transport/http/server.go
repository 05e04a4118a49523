package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig holds HTTP server lifecycle settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps an http.Server around a Handler and manages graceful
// shutdown.
type Server struct {
	httpServer *http.Server
	cfg        ServerConfig
	logger     *slog.Logger
}

// NewServer creates the server for the given handler.
func NewServer(handler http.Handler, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the server and blocks until ctx is canceled or the
// listener fails, then shuts down gracefully within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", "timeout", s.cfg.ShutdownTimeout)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
