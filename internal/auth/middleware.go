package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
)

type contextKey string

const (
	// SessionContextKey holds the validated *models.SessionClaims
	SessionContextKey contextKey = "session"
)

// SessionMiddleware accepts the session cookie or an Authorization: Bearer
// header and injects the claims into the request context.
func SessionMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractSessionToken(r, tm.CookieName())
			if tokenString == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			claims, err := tm.ValidateSession(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects sessions whose token does not carry role
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetSessionFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			for _, granted := range claims.Roles {
				if granted == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			pkghttp.WriteStatusError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

// GetSessionFromContext extracts session claims from the request context
func GetSessionFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

func extractSessionToken(r *http.Request, cookieName string) string {
	if value, err := GetSessionCookie(r, cookieName); err == nil && value != "" {
		return value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}

	return ""
}
