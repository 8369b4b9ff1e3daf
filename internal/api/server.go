// Package api exposes the miner's start/stop control and statistics over
// a small REST interface.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bardlex/ducominer/internal/stats"
	ducoErrors "github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
)

const healthCheckTimeout = 2 * time.Second

// Controller is the part of the mining worker the API drives
type Controller interface {
	Start() error
	Stop() error
	Running() bool
	Stats() stats.Snapshot
}

// HealthCheck reports whether an optional dependency is reachable; nil means healthy
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

// Server serves the control API
type Server struct {
	controller Controller
	logger     *log.Logger
	version    string
	router     *gin.Engine
	srv        *http.Server
	checks     []namedCheck
}

// NewServer builds the router; call Serve to start listening
func NewServer(addr, version string, controller Controller, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		controller: controller,
		logger:     logger.WithComponent("api"),
		version:    version,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/stats", s.handleStats)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
	}

	s.router = router
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// AddHealthCheck registers a dependency reported by the health endpoint.
// Call it before Serve.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until Shutdown
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return ducoErrors.Wrap(err, ducoErrors.ErrorTypeNetwork, "api_listen", "failed to listen").
			WithContext("addr", s.srv.Addr)
	}
	s.logger.Info("API server listening", "addr", ln.Addr().String())

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return ducoErrors.Wrap(err, ducoErrors.ErrorTypeNetwork, "api_serve", "API server failed")
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	code, status := http.StatusOK, "ok"
	checks := gin.H{}
	for _, nc := range s.checks {
		if err := nc.check(ctx); err != nil {
			code, status = http.StatusServiceUnavailable, "degraded"
			checks[nc.name] = err.Error()
			s.logger.WithError(err).Warn("health check failed", "check", nc.name)
			continue
		}
		checks[nc.name] = "ok"
	}

	snap := s.controller.Stats()
	c.JSON(code, gin.H{
		"status":  status,
		"version": s.version,
		"running": s.controller.Running(),
		"state":   snap.State,
		"checks":  checks,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Stats())
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.controller.Start(); err != nil {
		status := http.StatusInternalServerError
		if ducoErrors.IsType(err, ducoErrors.ErrorTypeConfiguration) {
			status = http.StatusBadRequest
		}
		s.logger.WithError(err).Warn("start rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mining started", "running": s.controller.Running()})
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.controller.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mining stopped", "running": s.controller.Running()})
}
