package middleware

import (
	"context"
	"errors"
	"net/http"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/http/response"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

type contextKey string

const (
	userContextKey    contextKey = "auth.user"
	sessionContextKey contextKey = "auth.session"
)

// SessionValidator is implemented by service.AuthService.
type SessionValidator interface {
	Validate(token string) (*domain.User, *domain.LoginSession, error)
}

// Authenticator resolves the session token from the session cookie or
// the Authorization header and stores the user and session in the
// request context. Resolution failures are left to RequireAuth so
// optional-auth routes can share the middleware.
type Authenticator struct {
	sessions SessionValidator
}

func NewAuthenticator(sessions SessionValidator) *Authenticator {
	return &Authenticator{sessions: sessions}
}

func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := security.GetCookie(r, security.SessionCookieName)
			if token == "" {
				token = bearerToken(r)
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, session, err := a.sessions.Validate(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that did not resolve to a valid session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "valid session required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userContextKey).(*domain.User)
	return user
}

func SessionFromContext(ctx context.Context) *domain.LoginSession {
	session, _ := ctx.Value(sessionContextKey).(*domain.LoginSession)
	return session
}

// IsSessionError reports whether err is one of the session validation
// sentinels, so handlers can map it to INVALID_SESSION uniformly.
func IsSessionError(err error) bool {
	return errors.Is(err, service.ErrLoginSessionInvalid) || errors.Is(err, service.ErrLoginSessionExpired)
}
