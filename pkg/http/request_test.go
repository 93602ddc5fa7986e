package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	proxies := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "2001:db8::/32", "not-a-cidr"})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct connection ignores spoofed headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			xRealIP:    "192.168.1.1",
			config:     proxies,
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy uses first forwarded address",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 10.0.0.5",
			config:     proxies,
			want:       "203.0.113.42",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			xRealIP:    "203.0.113.7",
			config:     proxies,
			want:       "203.0.113.7",
		},
		{
			name:       "ipv6 trusted proxy",
			remoteAddr: "[2001:db8::1]:443",
			xff:        "2001:db8:ffff::9",
			config:     proxies,
			want:       "2001:db8:ffff::9",
		},
		{
			name:       "nil config never trusts headers",
			remoteAddr: "10.0.0.5:1234",
			xff:        "203.0.113.42",
			config:     nil,
			want:       "10.0.0.5",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "198.51.100.3",
			config:     proxies,
			want:       "198.51.100.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var got string
	handler := pkghttp.ClientIPMiddleware(pkghttp.NewIPConfig([]string{"10.0.0.0/8"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = pkghttp.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", got)
	assert.Empty(t, pkghttp.ClientIPFromContext(context.Background()))
}
