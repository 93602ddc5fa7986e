package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/handlers"
	"github.com/BradenHooton/pagebuilder-identity/internal/middleware"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "routes-test-secret-that-is-32-chars-long"

func newTestRouter(t *testing.T, svc *handlers.MockAuthService) (http.Handler, *auth.TokenManager) {
	t.Helper()

	tm := auth.NewTokenManager(testSecret, time.Hour, "session", false)
	router := chi.NewRouter()
	RegisterRoutes(router,
		handlers.NewAuthHandler(svc, tm),
		handlers.NewHealthHandler(handlers.MockHealthChecker{}),
		tm,
		middleware.RateLimitConfig{RequestsPerMinute: 100},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)
	return router, tm
}

func TestRoutes_MeRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t, &handlers.MockAuthService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_MeWithSessionCookie(t *testing.T) {
	identity := &models.Identity{ID: "id-1", Subdomain: "acme", Roles: []string{models.RoleUser}}
	router, tm := newTestRouter(t, &handlers.MockAuthService{
		CurrentIdentityFunc: func(ctx context.Context, identityID string) (*models.Identity, error) {
			return identity, nil
		},
	})

	session, err := tm.IssueSession(identity)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: session.Token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subdomain":"acme"`)
}

func TestRoutes_PublicEndpointsRegistered(t *testing.T) {
	router, _ := newTestRouter(t, &handlers.MockAuthService{})

	for _, path := range []string{"/auth/signup", "/auth/login", "/auth/otp/request", "/auth/otp/login", "/auth/password/forgot", "/auth/password/reset", "/auth/logout"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
		assert.NotEqual(t, http.StatusMethodNotAllowed, w.Code, path)
	}

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
