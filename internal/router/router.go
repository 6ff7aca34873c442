package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poppopjmp/spiderfoot-sub001/internal/config"
	"github.com/poppopjmp/spiderfoot-sub001/internal/database"
	"github.com/poppopjmp/spiderfoot-sub001/internal/handler"
	"github.com/poppopjmp/spiderfoot-sub001/internal/middleware"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Rules *handler.RulesHandler
	Runs  *handler.RunsHandler
	Stats *handler.StatsHandler
}

func New(cfg *config.Config, db *database.DB, registry *prometheus.Registry, h Handlers) http.Handler {
	r := chi.NewRouter()

	rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimiter.Handler)

	r.Get("/health", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/rules", func(rules chi.Router) {
			rules.Get("/", h.Rules.List)
			rules.Post("/", h.Rules.Create)
			rules.Get("/{ruleID}", h.Rules.Get)
			rules.Put("/{ruleID}", h.Rules.Update)
			rules.Delete("/{ruleID}", h.Rules.Delete)
			rules.Post("/{ruleID}/preview", h.Rules.Preview)
			rules.Post("/{ruleID}/enforce", h.Rules.Enforce)
		})

		api.Route("/runs", func(runs chi.Router) {
			runs.Get("/", h.Runs.List)
			runs.Get("/{runID}", h.Runs.Get)
			runs.Get("/{runID}/errors", h.Runs.GetErrors)
			runs.Post("/{runID}/cancel", h.Runs.Cancel)
		})

		api.Get("/stats", h.Stats.Get)
	})

	return r
}

func healthHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.Health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
