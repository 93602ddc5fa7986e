package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	pkgauth "github.com/BradenHooton/pagebuilder-identity/pkg/auth"
	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
)

const (
	msgUserNotFound        = "User not found"
	msgInvalidCredentials  = "Invalid credentials"
	msgOTPNotFoundOrExpire = "OTP not found or expired"
	msgInvalidOTP          = "Invalid OTP"
	msgTooManyOTPRequests  = "Too many OTP requests"
	msgInvalidIdentifier   = "Invalid email or mobile number"
	msgInvalidCodeFormat   = "Code must be 6 digits"
	msgWeakPassword        = "Password must be 8-128 characters and include upper and lower case letters, a digit and a special character"

	// WarningDeliveryFailed is reported when a code was stored but could not be sent
	WarningDeliveryFailed = "delivery_failed"
)

// IdentityRepository defines the identity lookups used by the orchestrator
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByMobile(ctx context.Context, mobile string) (*models.Identity, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// OTPManager issues and verifies codes
type OTPManager interface {
	CreateOTP(ctx context.Context, id identifier.Identifier, channel models.Channel) (*OTPIssue, error)
	VerifyOTP(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) (VerifyResult, error)
}

// OTPRateLimiter gates code issuance per identifier
type OTPRateLimiter interface {
	Allow(ctx context.Context, id identifier.Identifier) (bool, error)
}

// SessionIssuer turns an identity into a signed session
type SessionIssuer interface {
	IssueSession(identity *models.Identity) (*auth.Session, error)
}

// PasswordHasher is an opaque hashing capability
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

// OTPPurpose selects the channel a requested code is bound to
type OTPPurpose string

const (
	PurposeLogin  OTPPurpose = "login"
	PurposeSignup OTPPurpose = "signup"
	PurposeReset  OTPPurpose = "reset"
)

type AuthConfig struct {
	RequireOTPOnSignup bool
}

// AuthDependencies groups the collaborators of AuthService
type AuthDependencies struct {
	Identities  IdentityRepository
	Classifier  *identifier.Classifier
	RateLimiter OTPRateLimiter
	OTPs        OTPManager
	Dispatcher  Dispatcher
	Sessions    SessionIssuer
	Hasher      PasswordHasher
	TimingDelay *auth.TimingDelay
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	AuditLogger *pkglogger.AuditLogger
}

// AuthService composes classifier, limiter, OTP store, dispatcher and
// session issuer into the user-facing flows.
type AuthService struct {
	identities  IdentityRepository
	classifier  *identifier.Classifier
	limiter     OTPRateLimiter
	otps        OTPManager
	dispatcher  Dispatcher
	sessions    SessionIssuer
	hasher      PasswordHasher
	timing      *auth.TimingDelay
	config      AuthConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(deps AuthDependencies, config AuthConfig) *AuthService {
	return &AuthService{
		identities:  deps.Identities,
		classifier:  deps.Classifier,
		limiter:     deps.RateLimiter,
		otps:        deps.OTPs,
		dispatcher:  deps.Dispatcher,
		sessions:    deps.Sessions,
		hasher:      deps.Hasher,
		timing:      deps.TimingDelay,
		config:      config,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		auditLogger: deps.AuditLogger,
	}
}

// SignupInput carries a signup request. Email and Mobile are optional but at
// least one is required. Code is checked only when OTP signup is enforced.
type SignupInput struct {
	Subdomain string
	Email     string
	Mobile    string
	Password  string
	Name      string
	Code      string
}

type AuthResult struct {
	Identity *models.Identity
	Session  *auth.Session
}

type OTPRequestResult struct {
	Masked     string
	ExpiresAt  time.Time
	TTLSeconds int
	Warning    string
}

// Signup creates an identity and signs it in. Uniqueness is checked in the
// order subdomain, email, mobile and the first conflict is reported.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	subdomain := strings.ToLower(strings.TrimSpace(in.Subdomain))
	if subdomain == "" {
		return nil, models.ValidationError("Subdomain is required")
	}

	var email, mobile *identifier.Identifier
	if strings.TrimSpace(in.Email) != "" {
		id, err := s.classifier.MustEmail(in.Email)
		if err != nil {
			return nil, models.ValidationError("Invalid email address")
		}
		email = &id
	}
	if strings.TrimSpace(in.Mobile) != "" {
		id, err := s.classifier.MustMobile(in.Mobile)
		if err != nil {
			return nil, models.ValidationError("Invalid mobile number")
		}
		mobile = &id
	}
	if email == nil && mobile == nil {
		return nil, models.ValidationError("Email or mobile number is required")
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, models.ValidationError(msgWeakPassword)
	}

	if err := s.checkAvailable(ctx, subdomain, email, mobile); err != nil {
		return nil, err
	}

	if s.config.RequireOTPOnSignup {
		target := email
		if target == nil {
			target = mobile
		}
		if err := s.verifyCode(ctx, *target, in.Code, target.OTPChannel()); err != nil {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "signup_failed",
				IPAddress:     pkghttp.ClientIPFromContext(ctx),
				Identifier:    target.Value,
				FailureReason: "otp_rejected",
			})
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.InternalError()
	}

	identity := &models.Identity{
		Subdomain:    subdomain,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Roles:        []string{models.RoleUser},
	}
	if email != nil {
		identity.Email = &email.Value
	}
	if mobile != nil {
		identity.Mobile = &mobile.Value
	}

	created, err := s.identities.Create(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// lost a race with a concurrent signup
			return nil, models.NewAuthError(http.StatusConflict, "Subdomain, email or mobile already registered", models.ErrConflict)
		}
		s.logger.Error("failed to create identity", slog.Any("error", err))
		return nil, models.InternalError()
	}

	s.logger.Info("identity created",
		slog.String("identity_id", created.ID),
		slog.String("subdomain", created.Subdomain))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "signup_success",
		IPAddress:  pkghttp.ClientIPFromContext(ctx),
		IdentityID: created.ID,
		Success:    true,
	})

	return s.startSession(created, "signup")
}

func (s *AuthService) checkAvailable(ctx context.Context, subdomain string, email, mobile *identifier.Identifier) error {
	if taken, err := s.exists(ctx, s.identities.GetBySubdomain, subdomain); err != nil {
		return err
	} else if taken {
		return models.NewAuthError(http.StatusConflict, "Subdomain already taken", models.ErrConflict)
	}

	if email != nil {
		if taken, err := s.exists(ctx, s.identities.GetByEmail, email.Value); err != nil {
			return err
		} else if taken {
			return models.NewAuthError(http.StatusConflict, "Email already registered", models.ErrConflict)
		}
	}

	if mobile != nil {
		if taken, err := s.exists(ctx, s.identities.GetByMobile, mobile.Value); err != nil {
			return err
		} else if taken {
			return models.NewAuthError(http.StatusConflict, "Mobile number already registered", models.ErrConflict)
		}
	}

	return nil
}

func (s *AuthService) exists(ctx context.Context, lookup func(context.Context, string) (*models.Identity, error), value string) (bool, error) {
	_, err := lookup(ctx, value)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	s.logger.Error("failed to check identity uniqueness", slog.Any("error", err))
	return false, models.InternalError()
}

// LoginWithPassword authenticates by email or mobile and password. An
// unknown identifier is reported as 404, a wrong password as 401; both are
// padded by the timing delay.
func (s *AuthService) LoginWithPassword(ctx context.Context, rawIdentifier, password string) (*AuthResult, error) {
	start := time.Now()

	id, err := s.classifier.Classify(rawIdentifier)
	if err != nil {
		return nil, models.ValidationError(msgInvalidIdentifier)
	}

	identity, err := s.resolve(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.timing.WaitFrom(ctx, start, false)
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     pkghttp.ClientIPFromContext(ctx),
				Identifier:    id.Value,
				FailureReason: "identity_not_found",
			})
			return nil, models.NewAuthError(http.StatusNotFound, msgUserNotFound, models.ErrNotFound)
		}
		s.logger.Error("failed to resolve identity", slog.Any("error", err))
		return nil, models.InternalError()
	}

	if identity.PasswordHash == "" || s.hasher.Compare(identity.PasswordHash, password) != nil {
		s.timing.WaitFrom(ctx, start, false)
		s.logger.Info("login failed: invalid credentials", slog.String("identity_id", identity.ID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     pkghttp.ClientIPFromContext(ctx),
			IdentityID:    identity.ID,
			Identifier:    id.Value,
			FailureReason: "invalid_credentials",
		})
		return nil, models.NewAuthError(http.StatusUnauthorized, msgInvalidCredentials, models.ErrUnauthorized)
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		IPAddress:  pkghttp.ClientIPFromContext(ctx),
		IdentityID: identity.ID,
		Channel:    "password",
		Success:    true,
	})

	return s.startSession(identity, "password")
}

// LoginWithOTP verifies code on the identifier's own channel, then resolves
// the identity. A verified code for an unknown identity is still a 404.
func (s *AuthService) LoginWithOTP(ctx context.Context, rawIdentifier, code string) (*AuthResult, error) {
	id, err := s.classifier.Classify(rawIdentifier)
	if err != nil {
		return nil, models.ValidationError(msgInvalidIdentifier)
	}

	if err := s.verifyCode(ctx, id, code, id.OTPChannel()); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     pkghttp.ClientIPFromContext(ctx),
			Identifier:    id.Value,
			Channel:       id.OTPChannel().String(),
			FailureReason: "otp_rejected",
		})
		return nil, err
	}

	identity, err := s.resolve(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewAuthError(http.StatusNotFound, msgUserNotFound, models.ErrNotFound)
		}
		s.logger.Error("failed to resolve identity", slog.Any("error", err))
		return nil, models.InternalError()
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		IPAddress:  pkghttp.ClientIPFromContext(ctx),
		IdentityID: identity.ID,
		Channel:    id.OTPChannel().String(),
		Success:    true,
	})

	return s.startSession(identity, "otp")
}

// RequestOTP rate-limits, stores and dispatches a fresh code. A failed
// delivery keeps the stored code and is reported as a warning.
func (s *AuthService) RequestOTP(ctx context.Context, rawIdentifier string, purpose OTPPurpose) (*OTPRequestResult, error) {
	id, err := s.classifier.Classify(rawIdentifier)
	if err != nil {
		return nil, models.ValidationError(msgInvalidIdentifier)
	}

	var channel models.Channel
	switch purpose {
	case PurposeLogin, PurposeSignup, "":
		channel = id.OTPChannel()
	case PurposeReset:
		channel = models.ChannelReset
	default:
		return nil, models.ValidationError("Unknown OTP purpose")
	}

	allowed, err := s.limiter.Allow(ctx, id)
	if err != nil {
		return nil, models.InternalError()
	}
	if !allowed {
		s.auditLogger.LogOTPEvent(pkglogger.AuditEvent{
			EventType:     "otp_rate_limited",
			IPAddress:     pkghttp.ClientIPFromContext(ctx),
			Identifier:    id.Value,
			Channel:       channel.String(),
			FailureReason: "rate_limited",
		})
		return nil, models.NewAuthError(http.StatusTooManyRequests, msgTooManyOTPRequests, models.ErrRateLimitExceeded)
	}

	issue, err := s.otps.CreateOTP(ctx, id, channel)
	if err != nil {
		s.logger.Error("failed to create otp", slog.Any("error", err))
		return nil, models.InternalError()
	}

	result := &OTPRequestResult{
		Masked:     id.Mask(),
		ExpiresAt:  issue.ExpiresAt,
		TTLSeconds: issue.TTLSeconds,
	}

	sent := s.dispatcher.Deliver(ctx, id, issue.Code, channel)
	if !sent.OK {
		result.Warning = WarningDeliveryFailed
	}

	s.auditLogger.LogOTPEvent(pkglogger.AuditEvent{
		EventType:  "otp_issued",
		IPAddress:  pkghttp.ClientIPFromContext(ctx),
		Identifier: id.Value,
		Channel:    channel.String(),
		Success:    sent.OK,
		Metadata:   map[string]string{"purpose": string(purpose), "provider": sent.Provider},
	})

	return result, nil
}

// ResetPassword replaces the password after verifying a reset-channel code
func (s *AuthService) ResetPassword(ctx context.Context, rawIdentifier, code, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ValidationError(msgWeakPassword)
	}

	id, err := s.classifier.Classify(rawIdentifier)
	if err != nil {
		return models.ValidationError(msgInvalidIdentifier)
	}

	if err := s.verifyCode(ctx, id, code, models.ChannelReset); err != nil {
		return err
	}

	identity, err := s.resolve(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewAuthError(http.StatusNotFound, msgUserNotFound, models.ErrNotFound)
		}
		s.logger.Error("failed to resolve identity", slog.Any("error", err))
		return models.InternalError()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.InternalError()
	}

	if err := s.identities.UpdatePassword(ctx, identity.ID, hash); err != nil {
		s.logger.Error("failed to update password",
			slog.String("identity_id", identity.ID),
			slog.Any("error", err))
		s.auditLogger.LogPasswordChange(identity.ID, pkghttp.ClientIPFromContext(ctx), false)
		return models.InternalError()
	}

	s.logger.Info("password reset", slog.String("identity_id", identity.ID))
	s.auditLogger.LogPasswordChange(identity.ID, pkghttp.ClientIPFromContext(ctx), true)

	return nil
}

// CurrentIdentity loads the identity behind a validated session
func (s *AuthService) CurrentIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewAuthError(http.StatusNotFound, msgUserNotFound, models.ErrNotFound)
		}
		s.logger.Error("failed to load identity", slog.Any("error", err))
		return nil, models.InternalError()
	}
	return identity, nil
}

func (s *AuthService) resolve(ctx context.Context, id identifier.Identifier) (*models.Identity, error) {
	switch id.Kind {
	case identifier.KindEmail:
		return s.identities.GetByEmail(ctx, id.Value)
	case identifier.KindMobile:
		return s.identities.GetByMobile(ctx, id.Value)
	default:
		return nil, models.ErrNotFound
	}
}

// verifyCode runs the OTP verifier and maps its outcome to an AuthError
func (s *AuthService) verifyCode(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) error {
	result, err := s.otps.VerifyOTP(ctx, id, strings.TrimSpace(code), channel)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return models.ValidationError(msgInvalidCodeFormat)
		}
		s.logger.Error("otp verification error", slog.Any("error", err))
		return models.InternalError()
	}

	if result.OK {
		return nil
	}

	switch result.Reason {
	case models.ReasonNotFound, models.ReasonExpired:
		return models.NewAuthError(http.StatusUnauthorized, msgOTPNotFoundOrExpire, result.Reason.Err())
	case models.ReasonInvalidCode, models.ReasonTooManyAttempts:
		return models.NewAuthError(http.StatusUnauthorized, msgInvalidOTP, result.Reason.Err())
	default:
		return models.InternalError()
	}
}

func (s *AuthService) startSession(identity *models.Identity, flow string) (*AuthResult, error) {
	session, err := s.sessions.IssueSession(identity)
	if err != nil {
		s.logger.Error("failed to issue session",
			slog.String("identity_id", identity.ID),
			slog.Any("error", err))
		return nil, models.InternalError()
	}

	s.metrics.SessionIssued(flow)

	return &AuthResult{Identity: identity, Session: session}, nil
}
