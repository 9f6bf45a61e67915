// Package server provides the HTTP surface of contentd: blocking and
// asynchronous run submission, run status, an SSE progress stream, and
// the health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/metrics"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// EngineFactory builds a pipeline engine bound to a per-run progress
// emitter. The server creates one engine per submitted run so each run's
// events land on its own subject.
type EngineFactory func(emitter pipeline.ProgressEmitter) (*pipeline.Engine, error)

// Server is the contentd HTTP server.
type Server struct {
	cfg       *config.Config
	echo      *echo.Echo
	logger    *logging.Logger
	registry  *events.Registry
	nc        *nats.Conn
	newEngine EngineFactory
	recorder  *metrics.Recorder
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// New creates the HTTP server. nc and recorder may be nil; the SSE
// endpoint then reports unavailable and gate metrics are skipped.
func New(cfg *config.Config, logger *logging.Logger, registry *events.Registry, nc *nats.Conn, newEngine EngineFactory, recorder *metrics.Recorder) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:       cfg,
		echo:      e,
		logger:    logger.Named("server"),
		registry:  registry,
		nc:        nc,
		newEngine: newEngine,
		recorder:  recorder,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/run", s.handleRunBlocking)
	api.POST("/runs", s.handleRunAsync)
	api.GET("/runs/:id", s.handleRunStatus)
	api.GET("/runs/:id/events", s.handleRunEvents)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "contentd"})
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.cfg.Server.ShutdownTimeout.Duration(),
		)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
