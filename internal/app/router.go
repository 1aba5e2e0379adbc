package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/forex"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Ledger     *accounting.Module
	Audit      *audit.Handler
	Enqueuer   forex.Enqueuer
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	Checks     map[string]HealthCheck
}

// NewRouter constructs the chi.Router serving the ledger API.
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

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range params.Checks {
			if err := check(req); err != nil {
				params.Logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/ledger", func(r chi.Router) {
		if params.Ledger != nil {
			params.Ledger.MountRoutes(r, accounting.RouteOptions{
				Enqueuer:           params.Enqueuer,
				RevaluationLimiter: RevaluationLimiter(),
			})
		}
		if params.Audit != nil {
			r.Route("/audit", params.Audit.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such endpoint")
	})
	return r
}
