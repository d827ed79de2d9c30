// Package server exposes plan generation over HTTP.
//
// The server runs the same orchestration chain as the CLI and adds:
//   - Kubernetes-style health probes (liveness, readiness)
//   - Graceful shutdown with connection draining
//   - A startup contract check that refuses to serve when the route
//     table drifts from the embedded OpenAPI document
package server

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/health"
	"github.com/plansmith/plansmith/internal/log"
	"github.com/plansmith/plansmith/internal/orchestrator"
	"github.com/plansmith/plansmith/internal/probe"
)

// Generator runs one plan generation. *orchestrator.Service implements it.
type Generator interface {
	Generate(ctx context.Context, req *orchestrator.Request) (*orchestrator.Response, error)
}

// Server serves plan generation and health endpoints.
type Server struct {
	httpServer      *http.Server
	generator       Generator
	prober          *probe.Prober
	candidates      []backend.Candidate
	probeManager    *health.ProbeManager
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Deps bundles what the server serves.
type Deps struct {
	Generator    Generator
	Prober       *probe.Prober
	Candidates   []backend.Candidate
	ProbeManager *health.ProbeManager
	Logger       *log.Logger
	Version      string
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080", "0.0.0.0:8080")
	Address string

	// ShutdownTimeout is the maximum time to wait for connections to drain during shutdown.
	// Defaults to 30 seconds if not specified.
	ShutdownTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request.
	// Defaults to 30 seconds if not specified.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Generation requests block on inference, so the default is a generous
	// 5 minutes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request.
	// Defaults to 120 seconds if not specified.
	IdleTimeout time.Duration
}

// NewServer creates the HTTP server. It validates the embedded OpenAPI
// document against the route table and fails on drift, so a misaligned
// binary never starts serving.
func NewServer(deps Deps, cfg Config) (*Server, error) {
	doc, err := loadContract(context.Background())
	if err != nil {
		return nil, err
	}
	if err := verifyContract(doc, routeTable); err != nil {
		return nil, err
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Config{Level: log.LevelError, Output: log.NewOutput(io.Discard)})
	}
	probeManager := deps.ProbeManager
	if probeManager == nil {
		probeManager = health.NewProbeManager(deps.Version)
	}
	prober := deps.Prober
	if prober == nil {
		prober = probe.NewProber(0)
	}

	s := &Server{
		generator:       deps.Generator,
		prober:          prober,
		candidates:      deps.Candidates,
		probeManager:    probeManager,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/plans/generate", s.handleGenerate)
	mux.HandleFunc("/v1/backends", s.handleBackends)
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)

	handler := withRequestLog(mux, logger)
	handler = withRecovery(handler, logger)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// Start runs the HTTP server. It blocks until the server stops and
// returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening",
		"addr", s.httpServer.Addr,
		"health_checks", s.probeManager.CheckNames())

	return s.httpServer.ListenAndServe()
}

// Handler returns the server's HTTP handler, for serving on a caller
// managed listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown performs graceful shutdown of the HTTP server.
//
// It:
//  1. Marks the server as shutting down (readiness probes start failing)
//  2. Disables HTTP keep-alives to stop accepting new requests
//  3. Waits for existing connections to drain (up to ShutdownTimeout)
//  4. Forces closure of any remaining connections after timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()

	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown returns whether the server is shutting down.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}
