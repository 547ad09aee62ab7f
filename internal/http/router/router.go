package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"go-identity-service/internal/http/handler"
	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/security"
)

// Dependencies carries everything the router mounts. Handler fields may
// be nil in tests that only exercise wiring.
type Dependencies struct {
	Auth   *handler.AuthHandler
	OAuth  *handler.OAuthHandler
	User   *handler.UserHandler
	Health *handler.HealthHandler

	Authenticator *middleware.Authenticator
	Limiter       middleware.Limiter
	Bypass        middleware.BypassEvaluator

	CORSOrigins      []string
	AuthRateLimitRPM int
	APIRateLimitRPM  int
}

func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.Metrics)
	if deps.Authenticator != nil {
		r.Use(deps.Authenticator.Middleware())
	}

	if deps.Health != nil {
		r.Get("/health/live", deps.Health.Live)
		r.Get("/health/ready", deps.Health.Ready)
	}
	r.Handle("/metrics", observability.MetricsHandler())

	authLimit := middleware.RateLimitPolicy{SustainedLimit: deps.AuthRateLimitRPM, SustainedWindow: time.Minute}
	apiLimit := middleware.RateLimitPolicy{SustainedLimit: deps.APIRateLimitRPM, SustainedWindow: time.Minute}
	keyFunc := middleware.SessionOrIPKeyFunc(security.SessionCookieName)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				rl := middleware.NewRateLimiter(deps.Limiter, authLimit, middleware.FailClosed, "auth", keyFunc, deps.Bypass, nil)
				r.Use(rl.Middleware())
			}
			if deps.Auth != nil {
				r.Post("/auth/signup/request", deps.Auth.SignupRequest)
				r.Post("/auth/signup/verify-email", deps.Auth.SignupVerifyEmail)
				r.Post("/auth/signup/confirm", deps.Auth.SignupConfirm)
				r.Post("/auth/login", deps.Auth.Login)
				r.Post("/auth/password-reset/request", deps.Auth.PasswordResetRequest)
				r.Post("/auth/password-reset/verify-email", deps.Auth.PasswordResetVerifyEmail)
				r.Post("/auth/password-reset/confirm", deps.Auth.PasswordResetConfirm)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAuth)
					r.Post("/auth/logout", deps.Auth.Logout)
					r.Post("/auth/logout-all", deps.Auth.LogoutAll)
					r.Put("/auth/password", deps.Auth.UpdatePassword)
					r.Post("/auth/email-change/request", deps.Auth.EmailChangeRequest)
					r.Post("/auth/email-change/confirm", deps.Auth.EmailChangeConfirm)
				})
			}
			if deps.OAuth != nil {
				r.Get("/oauth/{provider}/authorize", deps.OAuth.Authorize)
				r.Get("/oauth/{provider}/callback", deps.OAuth.Callback)
				r.Post("/oauth/{provider}/exchange", deps.OAuth.Exchange)
				r.Post("/oauth/link/challenge", deps.OAuth.LinkChallenge)
				r.Post("/oauth/link/confirm", deps.OAuth.LinkConfirm)
				r.With(middleware.RequireAuth).Delete("/oauth/{provider}", deps.OAuth.Unlink)
			}
		})

		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				rl := middleware.NewRateLimiter(deps.Limiter, apiLimit, middleware.FailOpen, "api", keyFunc, deps.Bypass, nil)
				r.Use(rl.Middleware())
			}
			if deps.User != nil {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAuth)
					r.Get("/users/me", deps.User.Me)
					r.Put("/users/me/icon", deps.User.UploadIcon)
					r.Delete("/users/me/icon", deps.User.DeleteIcon)
				})
			}
		})
	})

	return r
}
