package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", handlers.StatusHandler(deps))

		// Everything below is tenant-scoped
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.ExtractTenant)

			// Chat routing
			r.Post("/chat", handlers.ModelChatHandler(deps))
			r.Post("/roles/{roleID}/chat", handlers.RoleChatHandler(deps))

			// Multi-agent flows
			r.Post("/orchestrate", handlers.OrchestrateHandler(deps))
			r.Post("/standups", handlers.RunStandupHandler(deps))

			// Agent tasks
			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", handlers.CreateTaskHandler(deps))
				r.Get("/{taskID}", handlers.GetTaskHandler(deps))
				r.Post("/{taskID}/execute", handlers.ExecuteTaskHandler(deps))
			})

			// Quota and analytics
			r.Get("/quota", handlers.GetQuotaStatusHandler(deps))
			r.Post("/quota/reset-due", handlers.ResetDueQuotasHandler(deps))
			r.Get("/analytics/usage", handlers.UsageAnalyticsHandler(deps))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
