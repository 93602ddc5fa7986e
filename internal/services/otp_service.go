package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
)

const (
	otpCodeLength = 6
	otpCodeMin    = 100000
	otpCodeSpan   = 900000
)

// OTPRepository stores hashed codes. IncrementAttempts and Delete must be
// atomic. Delete removes the record and every older record for the same
// identifier and channel, and reports whether this call removed the record.
type OTPRepository interface {
	Create(ctx context.Context, record *models.OTPRecord) error
	GetLatest(ctx context.Context, identifier string, channel models.Channel) (*models.OTPRecord, error)
	IncrementAttempts(ctx context.Context, id string, max int) (int, error)
	Delete(ctx context.Context, record *models.OTPRecord) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type OTPConfig struct {
	TTL               time.Duration
	MaxVerifyAttempts int
}

// OTPIssue is returned to the caller exactly once; Code is never persisted
type OTPIssue struct {
	ID         string
	Code       string
	ExpiresAt  time.Time
	TTLSeconds int
}

type VerifyResult struct {
	OK     bool
	Reason models.VerifyReason
}

func verified() VerifyResult { return VerifyResult{OK: true} }

func rejected(reason models.VerifyReason) VerifyResult {
	return VerifyResult{Reason: reason}
}

// OTPService issues and verifies one-time codes per (identifier, channel)
type OTPService struct {
	repo    OTPRepository
	config  OTPConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	now          func() time.Time
	generateCode func() (string, error)
}

func NewOTPService(repo OTPRepository, config OTPConfig, m *metrics.Metrics, logger *slog.Logger) *OTPService {
	return &OTPService{
		repo:         repo,
		config:       config,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
		generateCode: generateOTPCode,
	}
}

// TTL is the lifetime of newly issued codes
func (s *OTPService) TTL() time.Duration {
	return s.config.TTL
}

// CreateOTP stores a fresh code for id on channel. Earlier codes are left in
// place but are never verified again.
func (s *OTPService) CreateOTP(ctx context.Context, id identifier.Identifier, channel models.Channel) (*OTPIssue, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	record := &models.OTPRecord{
		Identifier: id.Value,
		Channel:    channel,
		CodeHash:   hashOTPCode(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.TTL),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	s.metrics.OTPIssued(channel.String())
	s.logger.Info("otp issued",
		slog.String("identifier", id.Mask()),
		slog.String("channel", channel.String()),
		slog.Time("expires_at", record.ExpiresAt))

	return &OTPIssue{
		ID:         record.ID,
		Code:       code,
		ExpiresAt:  record.ExpiresAt,
		TTLSeconds: int(s.config.TTL.Seconds()),
	}, nil
}

// VerifyOTP checks code against the newest record for (id, channel).
// Every terminal outcome deletes the record and any older ones for the pair;
// only the caller whose delete removed the row reports that outcome, later
// callers see not_found.
func (s *OTPService) VerifyOTP(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) (VerifyResult, error) {
	if !isOTPCode(code) {
		return VerifyResult{}, fmt.Errorf("%w: code must be %d digits", models.ErrValidation, otpCodeLength)
	}

	result, err := s.verify(ctx, id, code, channel)
	if err != nil {
		return VerifyResult{}, err
	}

	label := "ok"
	if !result.OK {
		label = string(result.Reason)
		s.logger.Info("otp verification failed",
			slog.String("identifier", id.Mask()),
			slog.String("channel", channel.String()),
			slog.String("reason", label))
	}
	s.metrics.OTPVerified(channel.String(), label)

	return result, nil
}

func (s *OTPService) verify(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) (VerifyResult, error) {
	record, err := s.repo.GetLatest(ctx, id.Value, channel)
	if errors.Is(err, models.ErrNotFound) {
		return rejected(models.ReasonNotFound), nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to load otp: %w", err)
	}

	if record.IsExpiredAt(s.now()) {
		return s.finish(ctx, record, models.ReasonExpired)
	}

	if record.Attempts >= s.config.MaxVerifyAttempts {
		return s.finish(ctx, record, models.ReasonTooManyAttempts)
	}

	if subtle.ConstantTimeCompare([]byte(hashOTPCode(code)), []byte(record.CodeHash)) == 1 {
		return s.finish(ctx, record, models.ReasonNone)
	}

	attempts, err := s.repo.IncrementAttempts(ctx, record.ID, s.config.MaxVerifyAttempts)
	if errors.Is(err, models.ErrNotFound) {
		return rejected(models.ReasonNotFound), nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to record otp attempt: %w", err)
	}

	if attempts >= s.config.MaxVerifyAttempts {
		return s.finish(ctx, record, models.ReasonTooManyAttempts)
	}

	return rejected(models.ReasonInvalidCode), nil
}

// finish deletes record and reports outcome if this caller won the delete.
// ReasonNone means the code was consumed.
func (s *OTPService) finish(ctx context.Context, record *models.OTPRecord, outcome models.VerifyReason) (VerifyResult, error) {
	deleted, err := s.repo.Delete(ctx, record)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to delete otp: %w", err)
	}
	if !deleted {
		return rejected(models.ReasonNotFound), nil
	}

	if outcome == models.ReasonNone {
		return verified(), nil
	}
	return rejected(outcome), nil
}

// CleanupExpired removes every record whose expiry has passed
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpCodeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpCodeMin), nil
}

func hashOTPCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}

func isOTPCode(code string) bool {
	if len(code) != otpCodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
