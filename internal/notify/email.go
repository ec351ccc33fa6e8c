package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// ErrRejected marks a send the provider refused outright. Retrying will not help.
var ErrRejected = errors.New("notify: email rejected by provider")

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SES, stub) without changing callers.
// A nil error means the provider accepted the message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body

	// AppointmentID is attached as provider metadata.
	AppointmentID string
}

const (
	defaultFromName = "Legal Intake Team"

	// confirmationCategory tags confirmation mail in provider dashboards.
	confirmationCategory = "appointment-confirmation"
)

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	replyTo   string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ReplyTo   string
}

// NewSendGridSender creates a new SendGrid email sender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		replyTo:   cfg.ReplyTo,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.buildMessage(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}

	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "appointment_id", msg.AppointmentID)
		return classifyStatus(response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "appointment_id", msg.AppointmentID, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// buildMessage renders msg as a v3 mail with the plain-text part first.
func (s *SendGridSender) buildMessage(msg EmailMessage) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.AppointmentID != "" {
		p.SetCustomArg("appointment_id", msg.AppointmentID)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject
	m.AddPersonalizations(p)
	if msg.Body != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Body))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if s.replyTo != "" {
		m.SetReplyTo(mail.NewEmail("", s.replyTo))
	}
	m.AddCategories(confirmationCategory)
	return m
}

// classifyStatus treats 4xx other than 429 as permanent.
func classifyStatus(code int) error {
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return fmt.Errorf("notify: sendgrid returned status %d: %w", code, ErrRejected)
	}
	return fmt.Errorf("notify: sendgrid returned status %d", code)
}

// StubEmailSender is a no-op sender for local runs or when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("confirmation email not delivered (stub sender)", "appointment_id", msg.AppointmentID, "subject", msg.Subject)
	return nil
}
