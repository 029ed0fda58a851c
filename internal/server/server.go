// Package server exposes the HTTP surface: the webhook ingestion
// endpoint and a small read-only status API.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/engine"
	"github.com/zulandar/switchyard/internal/store"
)

// Opts holds configuration for the HTTP server.
type Opts struct {
	Config *config.Config
	Store  *store.Store
	Engine *engine.Engine
	Out    io.Writer
}

// Server is the webhook and status HTTP server.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	out    io.Writer
	router *gin.Engine
}

// New builds the server and its routes.
func New(opts Opts) (*Server, error) {
	if opts.Config == nil || opts.Store == nil || opts.Engine == nil {
		return nil, fmt.Errorf("server: config, store, and engine are required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    opts.Config,
		store:  opts.Store,
		engine: opts.Engine,
		out:    opts.Out,
		router: router,
	}
	s.registerRoutes()
	return s, nil
}

// Router returns the HTTP handler, used directly by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start launches the server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if s.out != nil {
		fmt.Fprintf(s.out, "Listening on %s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// registerRoutes sets up all routes on the Gin router.
func (s *Server) registerRoutes() {
	s.router.POST("/webhooks/github", s.handleWebhook)
	s.router.POST("/webhooks/linear", s.handleWebhook)

	s.router.GET("/api/installations", s.handleInstallations)
	s.router.GET("/api/installations/:id/status", s.handleInstallationStatus)
	s.router.GET("/healthz", s.handleHealthz)
}
