// api/internal/api/router/router.go
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bazaar/api/internal/api/handlers"
	auth_middleware "bazaar/api/internal/api/middleware"
	"bazaar/api/internal/core/domain"
)

// RouterConfig defines the strict dependencies required to build the API routing tree.
type RouterConfig struct {
	AllowedOrigins       []string
	AuthHandler          *handlers.AuthHandler
	AppsHandler          *handlers.AppsHandler
	InstallationsHandler *handlers.InstallationsHandler
	CatalogHandler       *handlers.CatalogHandler
	AuthMiddleware       *auth_middleware.AuthMiddleware
	Logger               *slog.Logger
}

// maxJSONBytes caps every non-upload body. Build submissions get their
// own, much larger ceiling on the upload route.
const (
	maxJSONBytes   = 1_048_576
	maxUploadBytes = 512 << 20
)

// NewRouter constructs the Chi multiplexer, attaches global middleware, and wires all endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// =========================================================================
	// 1. Global Gateway Middleware Pipeline
	// =========================================================================

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth_middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// In-memory token bucket rate limiting
	r.Use(cfg.AuthMiddleware.RateLimit)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// =========================================================================
	// 2. API v1 Routing Tree
	// =========================================================================

	r.Route("/api/v1", func(r chi.Router) {

		// ---------------------------------------------------------------------
		// Public Routes (No Auth Required)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(auth_middleware.MaxBytes(maxJSONBytes))

			r.Post("/auth/publisher/login", cfg.AuthHandler.Login(domain.ActorPublisher))
			r.Post("/auth/merchant/login", cfg.AuthHandler.Login(domain.ActorMerchant))

			r.Get("/store/apps", cfg.CatalogHandler.ListApps)
			r.Get("/store/apps/{appID}", cfg.CatalogHandler.AppDetails)
			r.Get("/store/categories", cfg.CatalogHandler.Categories)
		})

		// ---------------------------------------------------------------------
		// Publisher Routes (Requires a Publisher JWT)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuthentication)
			r.Use(cfg.AuthMiddleware.RequireActor(domain.ActorPublisher))

			r.With(auth_middleware.MaxBytes(maxUploadBytes)).
				Post("/apps/submit", cfg.AppsHandler.SubmitVersion)

			r.Group(func(r chi.Router) {
				r.Use(auth_middleware.MaxBytes(maxJSONBytes))
				r.Post("/apps/{appID}/publish", cfg.AppsHandler.SetPublished)
				r.Get("/apps/{appID}/status", cfg.AppsHandler.Status)
			})
		})

		// ---------------------------------------------------------------------
		// Merchant Routes (Requires a Merchant JWT)
		// ---------------------------------------------------------------------
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.RequireAuthentication)
			r.Use(cfg.AuthMiddleware.RequireActor(domain.ActorMerchant))
			r.Use(auth_middleware.MaxBytes(maxJSONBytes))

			r.Route("/installations", func(r chi.Router) {
				r.Post("/install", cfg.InstallationsHandler.Install)
				r.Post("/update", cfg.InstallationsHandler.Update)
				r.Delete("/uninstall", cfg.InstallationsHandler.Uninstall)
				r.Get("/my-apps", cfg.InstallationsHandler.ListInstalled)
				r.Get("/all-apps", cfg.InstallationsHandler.ListAll)
				r.Get("/apps/{appID}/update-available", cfg.InstallationsHandler.UpdateAvailable)
				r.Get("/{installationID}", cfg.InstallationsHandler.Details)
				r.Put("/{installationID}/complete", cfg.InstallationsHandler.MarkComplete)
			})
		})
	})

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	return r
}
