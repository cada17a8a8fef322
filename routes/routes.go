package routes

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/omniagent/app"
	"github.com/upb/omniagent/handlers"
	"github.com/upb/omniagent/middleware"
	"github.com/upb/omniagent/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	healthHandler := handlers.NewHealthHandler(db, deps.Health, deps.Logger)

	var events handlers.EventLog
	if deps.Audit != nil {
		events = deps.Audit
	}
	routingHandler := handlers.NewRoutingHandler(
		deps.Health,
		deps.Chat,
		deps.Telemetry,
		events,
		deps.Catalog,
		deps.Config.Backends.KeyHint(),
		deps.Logger,
	)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Chat, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", routingHandler.HandleStatus)
		r.Post("/route", routingHandler.HandleRoute)
		r.Get("/telemetry", routingHandler.HandleTelemetry)
		r.Get("/events", routingHandler.HandleEvents)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.HandleCreate)
			r.Get("/{id}", sessionHandler.HandleGet)
			r.Delete("/{id}", sessionHandler.HandleDelete)
			r.Put("/{id}/privacy", sessionHandler.HandleUpdatePrivacy)
			r.Post("/{id}/chat", sessionHandler.HandleChat)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
