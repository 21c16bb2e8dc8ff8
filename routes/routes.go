package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/model-router/app"
	"github.com/upb/model-router/handlers"
	"github.com/upb/model-router/middleware"
	"github.com/upb/model-router/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.SQLDB(), deps.Router, deps.Logger)
	generateHandler := handlers.NewGenerateHandler(deps.Generation, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Router, deps.Generation.DefaultModel(), deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/generate", generateHandler.HandleGenerate)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelsHandler.HandleList)
			r.Get("/status", modelsHandler.HandleStatus)
			r.Get("/health", modelsHandler.HandleHealth)
			r.Get("/{id}", modelsHandler.HandleGet)
		})

		// Audit trail, only with a database
		if deps.AuditEnabled() {
			generationsHandler := handlers.NewGenerationsHandler(deps.Generations, deps.Logger)
			r.Route("/generations", func(r chi.Router) {
				r.Get("/", generationsHandler.HandleList)
				r.Get("/stats", generationsHandler.HandleStats)
				r.Get("/{requestID}", generationsHandler.HandleGet)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
