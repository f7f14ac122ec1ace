// Package server exposes the compile pipeline and the job store over
// a JSON REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/qhaul/internal/config"
	"github.com/me/qhaul/internal/device"
	"github.com/me/qhaul/internal/pipeline"
	"github.com/me/qhaul/internal/store"
)

// Server is the REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	pipeline  *pipeline.Pipeline
	store     store.Store
	registry  *device.Registry
	gatherer  prometheus.Gatherer
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetricsGatherer sets the registry served at /metrics. Defaults
// to the global Prometheus gatherer.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a Server with all routes registered. st may be nil when
// no persistence is configured; the jobs listing then returns an
// error response.
func New(cfg config.ServerConfig, p *pipeline.Pipeline, st store.Store, reg *device.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		pipeline:  p,
		store:     st,
		registry:  reg,
		gatherer:  prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/circuits", func(r chi.Router) {
			r.Post("/compile", s.handleCompile)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSubmitJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Get("/logs", s.handleGetJobLogs)
			})
		})

		r.Get("/devices", s.handleListDevices)
	})
}
