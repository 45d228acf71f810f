// Package core provides the API chassis for the panel. It creates a chi
// router compatible with both standard HTTP (for local dev) and AWS Lambda
// Proxy Integration. It enforces cross-cutting concerns (logging, error
// handling, auth, request correlation) before requests reach domain
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"revenda/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// HealthProbe is a critical dependency check exposed on GET /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// RouteRegistrar mounts one domain handler's routes under /v1. The
// indirection avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the panel API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector
	Auth      Authenticator

	// V1RouteRegistrars are populated by the application entry point.
	V1RouteRegistrars []RouteRegistrar

	// PublicRouteRegistrars mount at the router root, outside the /v1
	// group. Used for webhook endpoints that carry their own auth.
	PublicRouteRegistrars []RouteRegistrar

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	// closers are released on Shutdown (e.g., the pgx pool).
	closers []func()

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. The caller is responsible for appending route registrars and
// calling MountRoutes afterwards.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe (local) and the Lambda proxy adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup function to run during Shutdown.
func (s *Server) OnShutdown(fn func()) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	for _, fn := range s.closers {
		fn()
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
