package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
)

var errSMSGatewayNotConfigured = errors.New("sms gateway not configured")

// HTTPSMSSender posts OTP messages to a form-encoded SMS gateway
type HTTPSMSSender struct {
	gatewayURL string
	apiKey     string
	senderID   string
	client     *http.Client
	logger     *slog.Logger
}

func NewHTTPSMSSender(gatewayURL, apiKey, senderID string, logger *slog.Logger) *HTTPSMSSender {
	return &HTTPSMSSender{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		senderID:   senderID,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (s *HTTPSMSSender) Provider() string {
	return "sms_gateway"
}

func (s *HTTPSMSSender) Send(ctx context.Context, msg OTPMessage) error {
	if s.gatewayURL == "" {
		return errSMSGatewayNotConfigured
	}

	body := fmt.Sprintf("%s is your sign-in code. It expires in %d minutes.", msg.Code, int(msg.TTL.Minutes()))
	if msg.Reset {
		body = fmt.Sprintf("%s is your password reset code. It expires in %d minutes.", msg.Code, int(msg.TTL.Minutes()))
	}

	form := url.Values{}
	form.Set("senderid", s.senderID)
	form.Set("mobile", msg.To)
	form.Set("msg", body)
	form.Set("msgType", "text")
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	s.logger.Info("otp sms sent", slog.String("mobile", pkglogger.SanitizedMobile(msg.To)))

	return nil
}
