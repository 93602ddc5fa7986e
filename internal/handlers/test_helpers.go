package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/BradenHooton/pagebuilder-identity/internal/services"
	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to the request context for testing authenticated endpoints
func WithSessionContext(req *http.Request, identityID string, roles ...string) *http.Request {
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}
	claims := &models.SessionClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: identityID,
		},
	}
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// TestSession builds an AuthResult whose cookie renders like a real one
func TestSession(identity *models.Identity) *services.AuthResult {
	expires := time.Now().Add(time.Hour)
	return &services.AuthResult{
		Identity: identity,
		Session: &auth.Session{
			Token:     "session-token",
			ExpiresAt: expires,
			Cookie:    auth.SessionCookie{Name: "session", Value: "session-token", MaxAge: 3600},
		},
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	SignupFunc            func(ctx context.Context, in services.SignupInput) (*services.AuthResult, error)
	LoginWithPasswordFunc func(ctx context.Context, identifier, password string) (*services.AuthResult, error)
	LoginWithOTPFunc      func(ctx context.Context, identifier, code string) (*services.AuthResult, error)
	RequestOTPFunc        func(ctx context.Context, identifier string, purpose services.OTPPurpose) (*services.OTPRequestResult, error)
	ResetPasswordFunc     func(ctx context.Context, identifier, code, newPassword string) error
	CurrentIdentityFunc   func(ctx context.Context, identityID string) (*models.Identity, error)
}

func (m *MockAuthService) Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error) {
	if m.SignupFunc == nil {
		return nil, models.InternalError()
	}
	return m.SignupFunc(ctx, in)
}

func (m *MockAuthService) LoginWithPassword(ctx context.Context, identifier, password string) (*services.AuthResult, error) {
	if m.LoginWithPasswordFunc == nil {
		return nil, models.NewAuthError(http.StatusUnauthorized, "Invalid credentials", models.ErrUnauthorized)
	}
	return m.LoginWithPasswordFunc(ctx, identifier, password)
}

func (m *MockAuthService) LoginWithOTP(ctx context.Context, identifier, code string) (*services.AuthResult, error) {
	if m.LoginWithOTPFunc == nil {
		return nil, models.NewAuthError(http.StatusUnauthorized, "Invalid OTP", models.ErrInvalidCode)
	}
	return m.LoginWithOTPFunc(ctx, identifier, code)
}

func (m *MockAuthService) RequestOTP(ctx context.Context, identifier string, purpose services.OTPPurpose) (*services.OTPRequestResult, error) {
	if m.RequestOTPFunc == nil {
		return &services.OTPRequestResult{Masked: "masked", TTLSeconds: 600}, nil
	}
	return m.RequestOTPFunc(ctx, identifier, purpose)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return nil
	}
	return m.ResetPasswordFunc(ctx, identifier, code, newPassword)
}

func (m *MockAuthService) CurrentIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	if m.CurrentIdentityFunc == nil {
		return nil, models.NewAuthError(http.StatusNotFound, "User not found", models.ErrNotFound)
	}
	return m.CurrentIdentityFunc(ctx, identityID)
}

// MockSessionClearer implements SessionCookieClearer for testing
type MockSessionClearer struct{}

func (MockSessionClearer) ClearSessionCookie() auth.SessionCookie {
	return auth.SessionCookie{Name: "session", MaxAge: 0}
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
