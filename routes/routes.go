package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/llm-failover/app"
	"github.com/upb/llm-failover/handlers"
	"github.com/upb/llm-failover/middleware"
	"github.com/upb/llm-failover/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := deps.AuthMiddleware
	if auth == nil {
		auth = middleware.NewAuthMiddleware(nil, deps.Logger)
	}

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Logger).WithStatusSources(statusSources(deps))

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", health.HandleStatus)

		if deps.Connectivity == nil {
			return
		}

		var events handlers.SwitchEventReader
		if deps.Audit != nil {
			events = deps.Audit
		}
		h := handlers.NewConnectivityHandler(deps.Connectivity, deps.Settings, events, deps.Logger)

		r.Route("/connectivity", func(r chi.Router) {
			r.Get("/results", h.HandleGetAllResults)
			r.Get("/auto-test", h.HandleGetAutoTest)
			r.Get("/settings", h.HandleGetSettings)
			r.Get("/switch-events", h.HandleListSwitchEvents)

			r.Route("/platforms/{platform}", func(r chi.Router) {
				r.Get("/results", h.HandleGetResults)
				r.Get("/active", h.HandleGetActive)
				r.Get("/providers/{id}/history", h.HandleProviderHistory)

				// Probing endpoints hit upstream providers
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAuth)
					r.Post("/test", h.HandleTestAll)
					r.Post("/providers/{id}/test", h.HandleTestProvider)
				})
			})

			// Runtime settings mutation
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Put("/auto-test", h.HandleSetAutoTest)
				r.Put("/settings", h.HandleReplaceSettings)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

func statusSources(deps *app.Dependencies) handlers.StatusSources {
	sources := handlers.StatusSources{
		Environment: deps.Config.Environment,
		StartedAt:   deps.StartedAt,
	}
	if deps.Metrics != nil {
		sources.Metrics = deps.Metrics
	}
	if deps.Audit != nil {
		sources.Audit = deps.Audit
	}
	if deps.Store != nil {
		sources.Results = deps.Store
	}
	if deps.Connectivity != nil {
		sources.AutoTest = deps.Connectivity.GetAutoTestEnabled
	}
	if deps.Transports != nil {
		sources.Proxy = deps.Transports
	}
	return sources
}
