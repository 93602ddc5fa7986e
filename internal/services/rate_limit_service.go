package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
)

// RateLimitCounter is an atomic fixed-window counter. CompareAndIncrement
// counts the request and returns true only while the window has room.
type RateLimitCounter interface {
	CompareAndIncrement(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitConfig holds the per-identifier OTP issuance ceiling
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitService gates OTP issuance per canonical identifier
type RateLimitService struct {
	counter RateLimitCounter
	config  RateLimitConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRateLimitService(counter RateLimitCounter, config RateLimitConfig, m *metrics.Metrics, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		counter: counter,
		config:  config,
		metrics: m,
		logger:  logger,
	}
}

// Allow reports whether one more OTP may be issued for id. Errors are
// returned to the caller, which must treat them as a refusal.
func (s *RateLimitService) Allow(ctx context.Context, id identifier.Identifier) (bool, error) {
	allowed, err := s.counter.CompareAndIncrement(ctx, id.Value, s.config.MaxRequests, s.config.Window)
	if err != nil {
		s.logger.Error("rate limit counter unavailable",
			slog.String("identifier", id.Mask()),
			slog.Any("error", err))
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	if !allowed {
		s.metrics.OTPRateLimited()
		s.logger.Warn("otp request rate limited",
			slog.String("identifier", id.Mask()),
			slog.Int("max_requests", s.config.MaxRequests),
			slog.Duration("window", s.config.Window))
	}

	return allowed, nil
}

// PruneStale removes counters whose window has fully elapsed
func (s *RateLimitService) PruneStale(ctx context.Context) (int64, error) {
	return s.counter.DeleteStale(ctx, time.Now().Add(-s.config.Window))
}
