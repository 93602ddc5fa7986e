package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
)

// unroutedProvider labels codes that never reached a sender
const unroutedProvider = "unrouted"

// OTPMessage is what a sender needs to deliver a code
type OTPMessage struct {
	To    string
	Code  string
	Reset bool
	TTL   time.Duration
}

// MessageSender delivers a code over one transport
type MessageSender interface {
	Send(ctx context.Context, msg OTPMessage) error
	Provider() string
}

// SendResult is the outcome of one delivery attempt
type SendResult struct {
	OK       bool
	Provider string
	Err      error
}

// Dispatcher hands a freshly issued code to the right transport
type Dispatcher interface {
	Deliver(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) SendResult
}

// NotificationService routes codes to email or SMS by channel
type NotificationService struct {
	email   MessageSender
	sms     MessageSender
	ttl     time.Duration
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewNotificationService(email, sms MessageSender, ttl, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		email:   email,
		sms:     sms,
		ttl:     ttl,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

func (s *NotificationService) Deliver(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) SendResult {
	var sender MessageSender
	switch channel {
	case models.ChannelEmail:
		sender = s.email
	case models.ChannelMobile:
		sender = s.sms
	case models.ChannelReset:
		sender = s.sms
		if id.Kind == identifier.KindEmail {
			sender = s.email
		}
	default:
		return s.undeliverable(id, channel, fmt.Errorf("unsupported otp channel %d", channel))
	}

	if sender == nil {
		return s.undeliverable(id, channel, fmt.Errorf("no sender for channel %s", channel))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := sender.Send(ctx, OTPMessage{
		To:    id.Value,
		Code:  code,
		Reset: channel == models.ChannelReset,
		TTL:   s.ttl,
	})
	s.metrics.DispatchObserved(sender.Provider(), time.Since(start), err == nil)

	if err != nil {
		s.logger.Error("otp delivery failed",
			slog.String("identifier", id.Mask()),
			slog.String("channel", channel.String()),
			slog.String("provider", sender.Provider()),
			slog.Any("error", err))
		return SendResult{Provider: sender.Provider(), Err: err}
	}

	return SendResult{OK: true, Provider: sender.Provider()}
}

// undeliverable reports a code that could not be routed to any sender
func (s *NotificationService) undeliverable(id identifier.Identifier, channel models.Channel, err error) SendResult {
	s.metrics.DispatchObserved(unroutedProvider, 0, false)
	s.logger.Error("otp delivery failed",
		slog.String("identifier", id.Mask()),
		slog.String("channel", channel.String()),
		slog.String("provider", unroutedProvider),
		slog.Any("error", err))
	return SendResult{Provider: unroutedProvider, Err: err}
}
