package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/multicloud-dashboard/app"
	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.AccessLog(deps.AccessLog, deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	auth := deps.AuthMiddleware
	rbac := deps.RBAC

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", deps.HealthHandler.HandleHealth)
		r.Get("/health/ready", deps.HealthHandler.HandleReadiness)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", deps.AuthHandler.HandleLogin)
			r.Post("/token/verify", deps.AuthHandler.HandleVerify)

			r.Group(func(r chi.Router) {
				r.Use(auth.OptionalAuth, rbac.LoadPrincipal)
				r.Post("/logout", deps.AuthHandler.HandleLogout)
				r.Get("/status", deps.AuthHandler.HandleStatus)
			})
		})

		// Anonymous callers are served with process-wide credentials
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Limit)
			r.Use(auth.OptionalAuth, rbac.LoadPrincipal)
			r.Post("/dashboard", deps.DashboardHandler.HandleDashboard)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth, rbac.LoadPrincipal)

			r.Get("/me", deps.UserHandler.HandleMe)
			r.Post("/me/password", deps.UserHandler.HandleChangePassword)
			r.Get("/roles", deps.UserHandler.HandleRoles)
			r.With(rbac.RequireRole(models.RoleSuperAdmin, models.RoleAdmin)).
				Get("/permissions", deps.UserHandler.HandlePermissions)

			r.Route("/users", func(r chi.Router) {
				r.Use(rbac.RequirePermission(models.PermManageUsers))
				r.Get("/", deps.UserHandler.HandleList)
				r.Post("/", deps.UserHandler.HandleCreate)
				r.Get("/{id}", deps.UserHandler.HandleGet)
				r.Put("/{id}", deps.UserHandler.HandleUpdate)
				r.Delete("/{id}", deps.UserHandler.HandleDelete)
				r.Put("/{id}/status", deps.UserHandler.HandleSetStatus)
				r.With(rbac.RequireRole(models.RoleSuperAdmin)).
					Put("/{id}/permissions", deps.UserHandler.HandleSetPermissions)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Use(rbac.RequirePermission(models.PermManageCredentials))
				r.Get("/status", deps.CredentialHandler.HandleStatus)
				r.Post("/{provider}", deps.CredentialHandler.HandleStore)
				r.Delete("/{provider}", deps.CredentialHandler.HandleDelete)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	return r
}
