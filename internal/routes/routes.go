package routes

import (
	"net/http"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/handlers"
	"github.com/BradenHooton/pagebuilder-identity/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
	metricsHandler http.Handler,
) {
	router.Get("/health", healthHandler.Health)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	router.Route("/auth", func(r chi.Router) {
		// Public routes, throttled per client IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimitConfig))

			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/otp/request", authHandler.RequestOTP)
			r.Post("/otp/login", authHandler.LoginWithOTP)
			r.Post("/password/forgot", authHandler.ForgotPassword)
			r.Post("/password/reset", authHandler.ResetPassword)
		})

		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.SessionMiddleware(tokenManager))
			r.Get("/me", authHandler.Me)
		})
	})
}
