package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
)

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailSender delivers OTP codes by email through AWS SES
type SESEmailSender struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

func NewSESEmailSender(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *SESEmailSender) Provider() string {
	return "ses"
}

// Send emails msg.Code to msg.To
func (s *SESEmailSender) Send(ctx context.Context, msg OTPMessage) error {
	subject, heading, intro := "Your sign-in code", "Sign in to your site", "Use this code to sign in:"
	if msg.Reset {
		subject, heading, intro = "Reset your password", "Password reset", "Use this code to reset your password:"
	}
	minutes := int(msg.TTL.Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
        <p class="code">%s</p>
        <p>This code expires in %d minutes. Never share it with anyone.</p>
        <div class="footer">
            <p>If you didn't request this code, you can ignore this email.</p>
        </div>
    </div>
</body>
</html>
`, heading, intro, msg.Code, minutes)

	textBody := fmt.Sprintf("%s\n\n%s %s\n\nThis code expires in %d minutes. Never share it with anyone.\n\nIf you didn't request this code, you can ignore this email.\n",
		heading, intro, msg.Code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("otp email sent",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
