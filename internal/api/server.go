package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcsp-io/dcsp/internal/adminauth"
	"github.com/dcsp-io/dcsp/internal/api/middleware"
	"github.com/dcsp-io/dcsp/internal/commitlog"
	"github.com/dcsp-io/dcsp/internal/identity"
	"github.com/dcsp-io/dcsp/internal/orchestrator"
	"github.com/dcsp-io/dcsp/internal/read"
	"github.com/dcsp-io/dcsp/internal/readiness"
	"github.com/dcsp-io/dcsp/internal/rules"
	"github.com/dcsp-io/dcsp/internal/schema"
)

// Server represents the DCSP HTTP API server: admin endpoints for
// ingestion triggers, schema/rule/identity registration and admin-key
// management, plus the Validated Read serving endpoint.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	apiKeyStore *adminauth.Store
	rateLimiter middleware.RateLimiter
	reader      *read.Service
	orch        *orchestrator.Orchestrator
	scheduler   *orchestrator.Scheduler
	readyz      *readiness.Service
	commits     *commitlog.Store
	schemas     *schema.Store
	ruleSet     *rules.Set
	idRegistry  *identity.Registry
}

// NewServer creates a new HTTP server instance with structured logging
// and the middleware stack.
//
// Dependencies are injected explicitly rather than being part of
// ServerConfig, following the teacher's separation of configuration
// (what) from dependencies (how).
//
// reader, readyz and commits are required -- the server panics if any of
// them is nil, since Validated Read and readiness gating are the serving
// path's core functionality. apiKeyStore and rateLimiter may be nil to
// disable authentication/rate-limiting (local development only).
// orch/scheduler/schemas/ruleSet/idRegistry are optional: a nil orch
// disables the admin trigger-ingestion endpoint, a nil schemas disables
// schema registration, a nil idRegistry disables identity registration,
// and a nil ruleSet leaves identity registration with empty allow-lists
// (no restriction).
func NewServer(
	cfg *ServerConfig,
	apiKeyStore *adminauth.Store,
	rateLimiter middleware.RateLimiter,
	reader *read.Service,
	orch *orchestrator.Orchestrator,
	scheduler *orchestrator.Scheduler,
	readyz *readiness.Service,
	commits *commitlog.Store,
	schemas *schema.Store,
	ruleSet *rules.Set,
	idRegistry *identity.Registry,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if reader == nil || readyz == nil || commits == nil {
		logger.Error("reader, readyz and commits are required - cannot start server without core functionality")
		panic("api: reader/readyz/commits cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		apiKeyStore: apiKeyStore,
		rateLimiter: rateLimiter,
		reader:      reader,
		orch:        orch,
		scheduler:   scheduler,
		readyz:      readyz,
		commits:     commits,
		schemas:     schemas,
		ruleSet:     ruleSet,
		idRegistry:  idRegistry,
	}

	server.setupRoutes(mux)

	if apiKeyStore != nil && cfg.AuthEnabled {
		logger.Info("admin authentication middleware enabled")
	} else {
		logger.Warn("admin authentication disabled", slog.Bool("store_configured", apiKeyStore != nil))
	}

	if rateLimiter != nil {
		logger.Info("rate limiting middleware enabled")
	} else {
		logger.Warn("rate limiter not configured - rate limiting middleware disabled")
	}

	authStore := apiKeyStore
	if !cfg.AuthEnabled {
		authStore = nil
	}

	options := []middleware.Option{
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAdminAuth(authStore, logger),
	}

	if rateLimiter != nil {
		options = append(options, middleware.WithRateLimit(rateLimiter))
	}

	options = append(options,
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	handler := middleware.Apply(mux, options...)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown, handling
// graceful shutdown on SIGINT and SIGTERM.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting dcsp api server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and its dependencies.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("scheduler", s.scheduler)
	s.closeDependency("rate limiter", s.rateLimiter)

	s.logger.Info("server shutdown completed successfully")

	return nil
}

// closeDependency attempts to close a server dependency that implements
// io.Closer, logging the outcome but never failing shutdown on error.
func (s *Server) closeDependency(name string, dep interface{}) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	s.logger.Info("closing " + name)

	if err := closer.Close(); err != nil {
		s.logger.Error("failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info(name + " closed successfully")
}
