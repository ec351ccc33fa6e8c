package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/haseebbuilds/voice-agent/internal/config"
	"github.com/haseebbuilds/voice-agent/internal/notify"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

func staticAWS(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	return aws.Config{Region: cfg.AWSRegion}, nil
}

func TestBuildEmailSenderRequiresConfig(t *testing.T) {
	_, _, err := BuildEmailSender(context.Background(), nil, staticAWS, logging.Discard())
	require.Error(t, err)
}

func TestBuildEmailSenderSelection(t *testing.T) {
	cases := []struct {
		name     string
		cfg      appconfig.Config
		provider string
	}{
		{"auto without sender falls back to stub", appconfig.Config{EmailProvider: "auto", SendGridAPIKey: "key"}, "stub"},
		{"auto prefers sendgrid", appconfig.Config{EmailProvider: "auto", SendGridAPIKey: "key", SenderEmail: "intake@firm.test"}, "sendgrid"},
		{"auto uses ses with aws credentials", appconfig.Config{EmailProvider: "auto", AWSAccessKeyID: "AKIA", AWSRegion: "us-east-1", SenderEmail: "intake@firm.test"}, "ses"},
		{"auto in production uses ses", appconfig.Config{Env: "production", AWSRegion: "us-east-1", SenderEmail: "intake@firm.test"}, "ses"},
		{"auto in development uses stub", appconfig.Config{Env: "development", SenderEmail: "intake@firm.test"}, "stub"},
		{"explicit stub", appconfig.Config{EmailProvider: "stub"}, "stub"},
		{"explicit ses", appconfig.Config{EmailProvider: "SES", AWSRegion: "us-west-2", SenderEmail: "intake@firm.test"}, "ses"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			sender, provider, err := BuildEmailSender(context.Background(), &cfg, staticAWS, logging.Discard())
			require.NoError(t, err)
			require.NotNil(t, sender)
			assert.Equal(t, tc.provider, provider)
			switch provider {
			case "stub":
				assert.IsType(t, &notify.StubEmailSender{}, sender)
			case "sendgrid":
				assert.IsType(t, &notify.SendGridSender{}, sender)
			case "ses":
				assert.IsType(t, &notify.SESSender{}, sender)
			}
		})
	}
}

func TestBuildEmailSenderErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  appconfig.Config
		load AWSConfigLoader
	}{
		{"sendgrid without key", appconfig.Config{EmailProvider: "sendgrid", SenderEmail: "intake@firm.test"}, staticAWS},
		{"ses without sender", appconfig.Config{EmailProvider: "ses"}, staticAWS},
		{"ses without loader", appconfig.Config{EmailProvider: "ses", SenderEmail: "intake@firm.test"}, nil},
		{"ses loader fails", appconfig.Config{EmailProvider: "ses", SenderEmail: "intake@firm.test"}, func(context.Context, *appconfig.Config) (aws.Config, error) {
			return aws.Config{}, errors.New("no credentials")
		}},
		{"unknown provider", appconfig.Config{EmailProvider: "carrier-pigeon"}, staticAWS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			_, _, err := BuildEmailSender(context.Background(), &cfg, tc.load, logging.Discard())
			assert.Error(t, err)
		})
	}
}
