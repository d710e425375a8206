package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/config"
	"github.com/finboard/server/internal/http/handlers"
	"github.com/finboard/server/internal/logging"
	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/middleware"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/respond"
)

// Deps are the collaborators the router wires into handlers and middleware
type Deps struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Tokens       *auth.TokenService
	Service      *auth.Service
	DB           handlers.Pinger
	LoginLimiter *middleware.FailureLimiter
}

// NewRouter creates a new HTTP router with the security pipeline and all routes configured
func NewRouter(d Deps) *chi.Mux {
	cfg := d.Config
	translator := respond.NewTranslator(d.Logger, cfg.IsProduction())
	sanitizer := middleware.NewSanitizer(d.Logger, d.Metrics)
	sqlGuard := middleware.NewSQLGuard(d.Logger, d.Metrics)

	authHandler := handlers.NewAuthHandler(d.Service, translator)
	adminHandler := handlers.NewAdminHandler(d.Service, translator)
	healthHandler := handlers.NewHealthHandler(d.DB, cfg.Env, d.Logger)

	delay := func(min, max time.Duration) func(http.Handler) http.Handler {
		if !cfg.AuthDelay {
			return middleware.RandomDelay(0, 0)
		}
		return middleware.RandomDelay(min, max)
	}

	limits := cfg.RateLimits
	registerLimit := middleware.RateLimitByIP(limits.Register.Max, limits.Register.Window, d.Logger, d.Metrics)
	// forgot-password and reset-password share one budget
	resetLimit := middleware.RateLimitByIP(limits.Reset.Max, limits.Reset.Window, d.Logger, d.Metrics)
	loginLimit := d.LoginLimiter.Middleware(middleware.GetIPKey,
		middleware.LimitExceeded(d.Logger, d.Metrics, metrics.StageLoginLimit))

	r := chi.NewRouter()
	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes, d.Logger, d.Metrics))
	r.Use(middleware.ValidateUserAgent(d.Logger, d.Metrics))
	r.Use(middleware.SecurityLogger(d.Tokens, d.Logger, d.Metrics))
	r.Use(sanitizer.Sanitize)
	r.Use(sqlGuard.Inspect)
	r.Use(middleware.RateLimitByIP(limits.General.Max, limits.General.Window, d.Logger, d.Metrics))

	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/api/info", healthHandler.HandleInfo)

	requireAuth := middleware.Authenticate(d.Service, translator)

	r.Route("/auth", func(r chi.Router) {
		r.With(registerLimit, delay(200*time.Millisecond, 800*time.Millisecond)).
			Post("/register", authHandler.HandleRegister)
		r.With(loginLimit, delay(300*time.Millisecond, 1000*time.Millisecond)).
			Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)

		resetRoutes := r.With(resetLimit, delay(500*time.Millisecond, 1500*time.Millisecond))
		resetRoutes.Post("/forgot-password", authHandler.HandleForgotPassword)
		resetRoutes.Post("/reset-password", authHandler.HandleResetPassword)

		// Protected routes (require valid access token)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/verify", authHandler.HandleVerify)
			r.Get("/profile", authHandler.HandleProfile)
			r.Put("/change-password", authHandler.HandleChangePassword)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireRole(model.RoleAdmin, d.Logger, d.Metrics))

		users := r.With(sanitizer.SanitizeParams, sqlGuard.InspectParams)
		users.Patch("/users/{id}/status", adminHandler.HandleSetStatus)
		users.Patch("/users/{id}/role", adminHandler.HandleSetRole)
		users.Delete("/users/{id}", adminHandler.HandleDelete)
	})

	return r
}
