package rpcserver

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/engine"
	"github.com/localretrieve/localretrieve/internal/logging"
)

// Server is the HTTP/JSON-RPC surface in front of a single engine.Worker.
type Server struct {
	cfg    *config.Config
	logger *logging.Logger
	worker *engine.Worker
	echo   *echo.Echo

	// requestsTotal and errorsTotal mirror the rpcRequestsTotal Prometheus
	// counter in-process, so getStats can report them without scraping
	// /metrics itself.
	requestsTotal atomic.Int64
	errorsTotal   atomic.Int64
}

// healthResponse is the JSON body of GET /health.
type healthResponse struct {
	Status string       `json:"status"`
	State  engine.State `json:"state"`
}

// New builds a Server wrapping worker. Routes are registered immediately;
// Start blocks until ctx is cancelled.
func New(cfg *config.Config, logger *logging.Logger, worker *engine.Worker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{cfg: cfg, logger: logger, worker: worker, echo: e}
	s.registerRoutes()
	return s
}

// registerRoutes wires /health and the single catch-all /rpc/:method
// dispatcher every typed engine.Worker operation is routed through.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/rpc/:method", s.handleRPC)
}

// RequestCounts reports the in-process RPC request/error totals backing the
// getStats operation's rpcRequestsTotal/rpcErrorsTotal fields.
func (s *Server) RequestCounts() (requests, errors int64) {
	return s.requestsTotal.Load(), s.errorsTotal.Load()
}

// handleHealth reports liveness independent of the worker's own lifecycle
// state, so an orchestrator can distinguish "process up" from "engine
// ready".
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", State: s.worker.State()})
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// performs a graceful shutdown bounded by the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("rpcserver start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ServerShutdownTimeout())
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpcserver shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo exposes the underlying router, useful for tests that issue requests
// without binding a real listener.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
