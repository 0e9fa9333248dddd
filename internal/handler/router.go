package handler

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sheetsmith/sheetsmith/internal/middleware"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// RouterConfig carries the handlers and middleware settings of the API.
type RouterConfig struct {
	Logger *slog.Logger

	Root    *Handler
	Health  *HealthHandler
	Metrics *MetricsHandler
	Auth    *AuthHandler
	Me      *MeHandler
	APIKeys *APIKeyHandler
	Admin   *AdminHandler
	Usage   *UsageHandler
	Bridge  *BridgeHandler
	Events  *EventsHandler

	Sessions    middleware.SessionVerifier
	APIKeyAuth  middleware.AuthConfig
	AdminAccess middleware.AdminConfig
	RateLimit   middleware.RateLimitConfig
	TrackingKey string
	CORS        middleware.CORSConfig
	Security    middleware.SecurityConfig
	MaxBodySize int64
}

// NewRouter builds the chi router with every route and its middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	// Probes and service info (no auth required)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Get("/metrics", cfg.Metrics.Metrics)
	r.Get("/", cfg.Root.Hello)

	session := middleware.Session(cfg.Sessions, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Account lifecycle, limited per client IP
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Post("/signup", cfg.Auth.SignUp)
			r.Post("/signin", cfg.Auth.SignIn)
			r.Post("/verify", cfg.Auth.Verify)
		})

		// Dashboard: the signed-in user's own account
		r.Route("/me", func(r chi.Router) {
			r.Use(session)
			r.Get("/", cfg.Me.Get)
			r.Patch("/", cfg.Me.Update)
			r.Delete("/", cfg.Me.Delete)
			r.Get("/usage", cfg.Me.Usage)
			r.Post("/beta-request", cfg.Me.RequestBeta)

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", cfg.APIKeys.List)
				r.Post("/", cfg.APIKeys.Create)
				r.Route("/{key_id}", func(r chi.Router) {
					r.Use(middleware.ValidatePathParam("key_id", middleware.IsKeyID))
					r.Delete("/", cfg.APIKeys.Revoke)
					r.Post("/rotate", cfg.APIKeys.Rotate)
				})
			})
		})

		// Admin console
		r.Route("/admin", func(r chi.Router) {
			r.Use(session)
			r.Use(middleware.RequireAdmin(cfg.AdminAccess))

			r.Get("/stats", cfg.Admin.Stats)
			r.Get("/beta-requests", cfg.Admin.ListBetaRequests)
			r.Get("/users", cfg.Admin.ListUsers)
			r.Route("/users/{id}", func(r chi.Router) {
				r.Use(middleware.ValidatePathParam("id", middleware.IsUserID))
				r.Get("/", cfg.Admin.GetUser)
				r.Delete("/", cfg.Admin.DeleteUser)
				r.Put("/tier", cfg.Admin.SetTier)
				r.Put("/admin", cfg.Admin.SetAdmin)
				r.Post("/beta/approve", cfg.Admin.ApproveBeta)
				r.Post("/beta/revoke", cfg.Admin.RevokeBeta)
				r.Post("/usage/reset", cfg.Admin.ResetUsage)
			})
		})

		// Add-on calls, authenticated by API key
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.APIKeyAuth))
			r.Use(middleware.RateLimitAPI(cfg.RateLimit))

			r.With(middleware.RequireScope(model.ScopeUsage)).Post("/usage", cfg.Usage.Record)
			r.With(middleware.RequireScope(model.ScopeUsage)).Get("/usage", cfg.Usage.Get)
			r.With(middleware.RequireScope(model.ScopeBridge)).Post("/bridge/{function}", cfg.Bridge.Call)
		})

		// Installation tracker
		r.With(middleware.TrackingKey(cfg.TrackingKey, cfg.Logger)).
			Post("/events/installations", cfg.Events.TrackInstallation)
	})

	// 404 and 405 handlers
	r.NotFound(cfg.Root.NotFound)
	r.MethodNotAllowed(cfg.Root.MethodNotAllowed)

	return r
}
