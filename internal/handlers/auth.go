package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/BradenHooton/pagebuilder-identity/internal/services"
	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error)
	LoginWithPassword(ctx context.Context, identifier, password string) (*services.AuthResult, error)
	LoginWithOTP(ctx context.Context, identifier, code string) (*services.AuthResult, error)
	RequestOTP(ctx context.Context, identifier string, purpose services.OTPPurpose) (*services.OTPRequestResult, error)
	ResetPassword(ctx context.Context, identifier, code, newPassword string) error
	CurrentIdentity(ctx context.Context, identityID string) (*models.Identity, error)
}

// SessionCookieClearer produces the cookie that ends a session
type SessionCookieClearer interface {
	ClearSessionCookie() auth.SessionCookie
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionCookieClearer
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, sessions SessionCookieClearer) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
	}
}

// Request DTOs

// SignupRequest represents the request body for signup
type SignupRequest struct {
	Subdomain string `json:"subdomain" validate:"required,subdomain"`
	Email     string `json:"email" validate:"omitempty,max=254"`
	Mobile    string `json:"mobile" validate:"omitempty,max=32"`
	Password  string `json:"password" validate:"required,max=128"`
	Name      string `json:"name" validate:"omitempty,max=100"`
	Code      string `json:"code" validate:"omitempty,len=6,numeric"`
}

// LoginRequest represents the request body for password login.
// Identifier is an email address or a mobile number.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

// OTPRequest represents the request body for requesting a code
type OTPRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Purpose    string `json:"purpose" validate:"omitempty,oneof=login signup"`
}

// OTPLoginRequest represents the request body for code login
type OTPLoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Code       string `json:"code" validate:"required"`
}

// ForgotPasswordRequest represents the request body for a reset code
type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
}

// ResetPasswordRequest represents the request body for a password reset
type ResetPasswordRequest struct {
	Identifier  string `json:"identifier" validate:"required,max=254"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// Response DTOs

// IdentityResponse is the public view of an identity
type IdentityResponse struct {
	ID        string    `json:"id"`
	Subdomain string    `json:"subdomain"`
	Email     *string   `json:"email,omitempty"`
	Mobile    *string   `json:"mobile,omitempty"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse is returned by every flow that signs the caller in
type SessionResponse struct {
	Identity  IdentityResponse `json:"identity"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// OTPRequestResponse describes an issued code without revealing it
type OTPRequestResponse struct {
	Masked    string `json:"masked"`
	ExpiresIn int    `json:"expires_in"`
}

func toIdentityResponse(identity *models.Identity) IdentityResponse {
	return IdentityResponse{
		ID:        identity.ID,
		Subdomain: identity.Subdomain,
		Email:     identity.Email,
		Mobile:    identity.Mobile,
		Name:      identity.Name,
		Roles:     identity.Roles,
		CreatedAt: identity.CreatedAt,
	}
}

// decodeAndValidate reads a JSON body into req and runs struct validation.
// It writes the 400 response itself and reports whether the caller may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// writeServiceError maps orchestrator errors onto the JSON error envelope
func writeServiceError(w http.ResponseWriter, err error) {
	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		pkghttp.WriteStatusError(w, authErr.Status, authErr.Message)
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}

func writeSession(w http.ResponseWriter, status int, message string, result *services.AuthResult) {
	result.Session.Cookie.Write(w)
	pkghttp.WriteSuccess(w, status, message, SessionResponse{
		Identity:  toIdentityResponse(result.Identity),
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

func writeOTPIssued(w http.ResponseWriter, message string, result *services.OTPRequestResult) {
	pkghttp.WriteJSON(w, http.StatusOK, pkghttp.Response{
		Success: true,
		Message: message,
		Warning: result.Warning,
		Data: OTPRequestResponse{
			Masked:    result.Masked,
			ExpiresIn: result.TTLSeconds,
		},
	})
}

// Signup handles identity creation
// @Summary Create an identity and claim a subdomain
// @Accept json
// @Param request body SignupRequest true "Signup request"
// @Produce json
// @Success 201 {object} SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Signup(r.Context(), services.SignupInput{
		Subdomain: req.Subdomain,
		Email:     req.Email,
		Mobile:    req.Mobile,
		Password:  req.Password,
		Name:      req.Name,
		Code:      req.Code,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSession(w, http.StatusCreated, "Signup successful", result)
}

// Login handles password login by email or mobile number
// @Summary Password login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.LoginWithPassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSession(w, http.StatusOK, "Login successful", result)
}

// RequestOTP issues a login or signup code
// @Summary Request a one-time code
// @Accept json
// @Param request body OTPRequest true "OTP request"
// @Produce json
// @Success 200 {object} OTPRequestResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/otp/request [post]
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	purpose := services.PurposeLogin
	if req.Purpose != "" {
		purpose = services.OTPPurpose(req.Purpose)
	}

	result, err := h.service.RequestOTP(r.Context(), req.Identifier, purpose)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeOTPIssued(w, "OTP sent", result)
}

// LoginWithOTP handles code login
// @Summary Sign in with a one-time code
// @Accept json
// @Param request body OTPLoginRequest true "OTP login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /auth/otp/login [post]
func (h *AuthHandler) LoginWithOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.LoginWithOTP(r.Context(), req.Identifier, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSession(w, http.StatusOK, "Login successful", result)
}

// ForgotPassword issues a reset-channel code
// @Summary Request a password reset code
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 200 {object} OTPRequestResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.RequestOTP(r.Context(), req.Identifier, services.PurposeReset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeOTPIssued(w, "Password reset code sent", result)
}

// ResetPassword confirms a reset code and sets a new password
// @Summary Reset password
// @Accept json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 200
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Password updated. Please log in.", nil)
}

// Logout clears the session cookie. Sessions are stateless, so the token
// itself stays valid until it expires.
// @Summary Logout
// @Produce json
// @Success 200
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookie().Write(w)
	pkghttp.WriteSuccess(w, http.StatusOK, "Logged out", nil)
}

// Me returns the identity behind the current session
// @Summary Current identity
// @Security SessionCookie
// @Produce json
// @Success 200 {object} IdentityResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	identity, err := h.service.CurrentIdentity(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", map[string]IdentityResponse{
		"identity": toIdentityResponse(identity),
	})
}
