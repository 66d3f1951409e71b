// Package httpapi exposes the analysis coordinator over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP front of a coordinator.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	coord   contract.AnalysisCoordinator
	cfg     *contract.Config
	metrics http.Handler
	log     *logrus.Entry
}

// NewServer creates a server listening on cfg.Listen. A nil gatherer serves the
// default Prometheus registry.
func NewServer(cfg *contract.Config, coord contract.AnalysisCoordinator, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:  http.NewServeMux(),
		coord:   coord,
		cfg:     cfg,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		log:     contract.ComponentLogger("httpapi"),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.applyMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /api/stats", s.handleRequestStats)
	s.router.HandleFunc("GET /api/stats/status/{owner}/{repo}", s.handleStatus)
	s.router.HandleFunc("GET /api/stats/result/{owner}/{repo}", s.handleResult)
	s.router.Handle("GET /metrics", s.metrics)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.cfg.Listen).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server on %s: %w", s.cfg.Listen, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware, outermost last.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = recoveryMiddleware(s.log)(handler)
	handler = loggingMiddleware(s.log)(handler)
	handler = requestIDMiddleware()(handler)
	handler = corsMiddleware()(handler)
	return handler
}
