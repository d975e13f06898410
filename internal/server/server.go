// Package server binds the tool gateway and the generation service to
// HTTP. One endpoint speaks JSON-RPC for tools, the rest are plain
// REST for operators.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/gateway"
	"github.com/storyweave/storyd/internal/jobs"
	"github.com/storyweave/storyd/internal/lock"
	"github.com/storyweave/storyd/internal/orchestrator"
)

// maxBodyBytes caps JSON-RPC request bodies.
const maxBodyBytes = 1 << 20

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the daemon.
type Server struct {
	echo    *echo.Echo
	gw      *gateway.Gateway
	svc     *orchestrator.Service
	tracker *jobs.Tracker
	locker  lock.Locker
	logger  *zap.Logger
	addr    string
}

// Config configures the server.
type Config struct {
	Host string
	Port int

	// Gateway serves POST /mcp. Required.
	Gateway *gateway.Gateway

	// Service serves POST /generate. Required.
	Service *orchestrator.Service

	// Tracker serves GET /jobs/:id. Required.
	Tracker *jobs.Tracker

	// Locker reports its mode in /healthz.
	Locker lock.Locker

	Logger *zap.Logger
}

// New creates the server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:    e,
		gw:      cfg.Gateway,
		svc:     cfg.Service,
		tracker: cfg.Tracker,
		locker:  cfg.Locker,
		logger:  logger,
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.POST("/mcp", s.handleRPC)
	s.echo.POST("/generate", s.handleGenerate)
	s.echo.GET("/jobs/:id", s.handleJob)
	s.echo.GET("/healthz", s.handleHealth)
}

// handleRPC feeds the request body to the gateway. JSON-RPC carries
// its own error envelope, so the HTTP status is always 200.
func (s *Server) handleRPC(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	resp := s.gw.HandleRaw(c.Request().Context(), body)
	return c.JSON(http.StatusOK, resp)
}

// generateResponse is the JSON body of POST /generate outcomes that
// never reached the engine.
type generateResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// handleGenerate runs one generation job synchronously. A concurrent
// run answers 409 so callers can back off instead of queueing.
func (s *Server) handleGenerate(c echo.Context) error {
	result, err := s.svc.GenerateStory(c.Request().Context())
	switch {
	case errors.Is(err, lock.ErrBusy):
		return c.JSON(http.StatusConflict, generateResponse{OK: false, Reason: "generation already in progress"})
	case errors.Is(err, lock.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, generateResponse{OK: false, Reason: "lock backend unavailable"})
	case err != nil:
		s.logger.Error("generation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, generateResponse{OK: false, Reason: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleJob(c echo.Context) error {
	job, ok := s.tracker.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

// healthResponse is the JSON body of GET /healthz.
type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	LockMode string `json:"lock_mode,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok", Service: "storyd"}
	if s.locker != nil {
		resp.LockMode = s.locker.Mode()
	}
	return c.JSON(http.StatusOK, resp)
}

// Echo returns the router, for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
