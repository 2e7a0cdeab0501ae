package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/estatehub/estatehub/internal/auth"
	"github.com/estatehub/estatehub/internal/observability"
	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/users"
	"github.com/estatehub/estatehub/jobs"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	AuthMiddleware auth.Middleware
	AuthHandler    *auth.Handler
	AccessHandler  *rbac.Handler
	UsersHandler   *users.Handler
	JobHandler     *jobs.Handler
	HealthChecks   map[string]HealthCheck
}

// NewRouter constructs the chi.Router with EstateHub defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", healthHandler(params.Logger, params.HealthChecks))
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)
		if params.AuthHandler != nil {
			r.Get("/me", params.AuthHandler.Me)
		}
		if params.AccessHandler != nil {
			r.Route("/access", params.AccessHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
