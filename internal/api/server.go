package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/uvotredux/internal/api/middleware"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability"
)

// Server is the results HTTP server.
type Server struct {
	echo    *echo.Echo
	config  *Config
	store   ledger.Store
	metrics *observability.Metrics
	version string

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLedger sets the run ledger served under /api/v1/runs.
func WithLedger(store ledger.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithMetrics exposes the registry of m on /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a new HTTP server with the given configuration and options.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = ledger.NoopStore{}
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.String("data_dir", config.DataDir),
		logger.Bool("metrics", s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	// Prometheus scrapes would drown the request log
	s.echo.Use(mw.NewRequestLogger(GetLogger().Module("http"), func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))

	securityConfig := mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/targets/:name/summary", s.targetSummary)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("Starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		GetLogger().Info("Shutdown signal received, initiating graceful shutdown")
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	GetLogger().Info("Server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
