package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(env string, req *http.Request) *httptest.ResponseRecorder {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: env})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Always(t *testing.T) {
	w := serveWithHeaders("development", httptest.NewRequest("GET", "/", nil))

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
		{"Content-Security-Policy", apiContentSecurityPolicy},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, w.Header().Get(tt.header), tt.header)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	https := httptest.NewRequest("GET", "/", nil)
	https.Header.Set("X-Forwarded-Proto", "https")

	w := serveWithHeaders("production", https)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")

	w = serveWithHeaders("production", httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "plain http must not get HSTS")

	https = httptest.NewRequest("GET", "/", nil)
	https.Header.Set("X-Forwarded-Proto", "https")
	w = serveWithHeaders("development", https)
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
