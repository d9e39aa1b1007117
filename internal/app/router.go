package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/keystone-iam/keystone/internal/auth"
	"github.com/keystone-iam/keystone/internal/features"
	"github.com/keystone-iam/keystone/internal/observability"
	"github.com/keystone-iam/keystone/internal/rbac"
	"github.com/keystone-iam/keystone/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	AuthMiddleware  auth.Middleware
	FeaturesHandler *features.Handler
	RolesHandler    *roles.Handler
	Guard           rbac.Guard
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Keystone defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r, AuthRateLimiter())
	})

	// Everything below requires an authenticated principal; the guard
	// then applies the per-operation policy table.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireAuthenticated)
		if params.FeaturesHandler != nil {
			r.Route("/features", params.FeaturesHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				r.Use(params.Guard.Require("roles.list"))
				params.RolesHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
