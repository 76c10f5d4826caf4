package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel-ops/sentinel/internal/assets"
	"github.com/sentinel-ops/sentinel/internal/auth"
	"github.com/sentinel-ops/sentinel/internal/dashboard"
	"github.com/sentinel-ops/sentinel/internal/export"
	"github.com/sentinel-ops/sentinel/internal/observability"
	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/requests"
	"github.com/sentinel-ops/sentinel/jobs"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	// Authenticate guards every /api route except login and register. Tests
	// may substitute a header-based principal injector.
	Authenticate func(http.Handler) http.Handler
	// OpsGuard protects /jobs. Nil leaves it open.
	OpsGuard func(http.Handler) http.Handler

	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	RequestsHandler    *requests.Handler
	AssetsHandler      *assets.Handler
	DashboardHandler   *dashboard.Handler
	ExportHandler      *export.Handler
	JobHandler         *jobs.Handler

	Checks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			if params.OpsGuard != nil {
				jr.Use(params.OpsGuard)
			}
			params.JobHandler.MountRoutes(jr)
		})
	}

	if params.AuthHandler != nil {
		r.Group(params.AuthHandler.MountRoutes)
		r.Route("/api/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.Authenticate != nil {
			api.Use(params.Authenticate)
		}
		api.Route("/me", func(me chi.Router) {
			if params.AuthHandler != nil {
				params.AuthHandler.MountAccountRoutes(me)
			}
			if params.PermissionsHandler != nil {
				me.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
		})
		if params.AuthHandler != nil {
			api.Route("/users", params.AuthHandler.MountUserRoutes)
		}
		if params.RequestsHandler != nil {
			api.Route("/requests", params.RequestsHandler.MountRoutes)
		}
		if h := params.AssetsHandler; h != nil {
			api.Route("/bases", h.MountBaseRoutes)
			api.Route("/stock", h.MountStockRoutes)
			api.Route("/purchases", h.MountPurchaseRoutes)
			api.Route("/transfers", h.MountTransferRoutes)
			api.Route("/assignments", h.MountAssignmentRoutes)
			api.Route("/expenditures", h.MountExpenditureRoutes)
		}
		if params.DashboardHandler != nil {
			api.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.ExportHandler != nil {
			api.Route("/export", params.ExportHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no route for "+r.Method+" "+r.URL.Path)
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httpx.JSON(w, status, resp)
	}
}
