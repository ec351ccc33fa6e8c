package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/haseebbuilds/voice-agent/internal/config"
	"github.com/haseebbuilds/voice-agent/internal/notify"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// AWSConfigLoader builds the shared AWS SDK config.
type AWSConfigLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// BuildEmailSender selects the confirmation email provider. "auto" prefers
// SendGrid when an API key is set, then SES when AWS credentials or
// production mode are present, and otherwise logs to the stub sender.
// It returns the sender and the provider name.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (notify.EmailSender, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	if provider == "" || provider == "auto" {
		provider = autoEmailProvider(cfg)
	}

	switch provider {
	case "stub":
		logger.Warn("confirmation emails are logged, not delivered")
		return notify.NewStubEmailSender(logger), "stub", nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" || cfg.SenderEmail == "" {
			return nil, "", fmt.Errorf("bootstrap: sendgrid requires SENDGRID_API_KEY and SENDER_EMAIL")
		}
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SenderEmail,
			FromName:  cfg.SenderName,
			ReplyTo:   cfg.EmailReplyTo,
		}, logger)
		return sender, "sendgrid", nil
	case "ses":
		if cfg.SenderEmail == "" {
			return nil, "", fmt.Errorf("bootstrap: ses requires SENDER_EMAIL")
		}
		if loadAWS == nil {
			return nil, "", fmt.Errorf("bootstrap: ses requires an AWS config loader")
		}
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := sesv2.NewFromConfig(awsCfg)
		sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SenderEmail,
			FromName:  cfg.SenderName,
			ReplyTo:   cfg.EmailReplyTo,
		}, logger)
		return sender, "ses", nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}

func autoEmailProvider(cfg *appconfig.Config) string {
	switch {
	case cfg.SenderEmail == "":
		return "stub"
	case cfg.SendGridAPIKey != "":
		return "sendgrid"
	case cfg.AWSAccessKeyID != "" || cfg.IsProduction():
		return "ses"
	default:
		return "stub"
	}
}
