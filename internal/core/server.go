package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/config"
)

// Server encapsulates the router and the chassis-level dependencies for the
// Inkwell API, allowing injection during testing and distinct configuration
// per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are the subsystem checks executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are mounted under /v1 behind the account-identity
	// middleware when MountRoutes runs.
	V1RouteRegistrars []func(chi.Router)

	// AdminRouteRegistrars are mounted under /v1/admin behind the admin key.
	AdminRouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the server for route
// mounting. Routes are mounted separately via MountRoutes so tests can
// customize registration.
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

// MountRoutes applies the middleware chain and mounts all registered routes.
// The order is: Recoverer (outermost), RequestID, RequestLogger, then the
// public health endpoint and the authenticated /v1 tree.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireAccount)
			for _, register := range s.V1RouteRegistrars {
				register(r)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(s.Config.Security.AdminAPIKey))
			r.Route("/admin", func(r chi.Router) {
				for _, register := range s.AdminRouteRegistrars {
					register(r)
				}
			})
		})
	})
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	// Connection pools are owned by main and closed there; nothing is held
	// by the chassis itself.
	_ = ctx
	s.Logger.Info("server shutdown complete")
	return nil
}
