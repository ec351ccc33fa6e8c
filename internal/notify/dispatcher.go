package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/observability/metrics"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

var notifyTracer = otel.Tracer("voiceagent.internal.notify")

// AppointmentStore is the part of the appointment repository the dispatcher needs.
type AppointmentStore interface {
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
	MarkConfirmationSent(ctx context.Context, id string) (bool, error)
}

// ConfirmationDispatcher sends booking confirmations at most once per appointment.
type ConfirmationDispatcher struct {
	store       AppointmentStore
	claims      ClaimStore
	sender      EmailSender
	loc         *time.Location
	maxAttempts uint
	baseDelay   time.Duration
	maxDelay    time.Duration
	metrics     *metrics.IntakeMetrics
	logger      *logging.Logger

	wg sync.WaitGroup
}

// DispatcherOption customizes a dispatcher.
type DispatcherOption func(*ConfirmationDispatcher)

// WithRetry bounds send attempts and sets the exponential backoff range.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) DispatcherOption {
	return func(d *ConfirmationDispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = uint(maxAttempts)
		}
		if baseDelay > 0 {
			d.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			d.maxDelay = maxDelay
		}
	}
}

// WithClaimStore replaces the in-process claim store.
func WithClaimStore(claims ClaimStore) DispatcherOption {
	return func(d *ConfirmationDispatcher) {
		if claims != nil {
			d.claims = claims
		}
	}
}

// WithLocation sets the timezone used in email bodies.
func WithLocation(loc *time.Location) DispatcherOption {
	return func(d *ConfirmationDispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithDispatchMetrics records confirmation outcomes.
func WithDispatchMetrics(m *metrics.IntakeMetrics) DispatcherOption {
	return func(d *ConfirmationDispatcher) {
		d.metrics = m
	}
}

// NewConfirmationDispatcher constructs a dispatcher.
func NewConfirmationDispatcher(store AppointmentStore, sender EmailSender, logger *logging.Logger, opts ...DispatcherOption) *ConfirmationDispatcher {
	if store == nil {
		panic("notify: appointment store required")
	}
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &ConfirmationDispatcher{
		store:       store,
		claims:      NewMemoryClaimStore(),
		sender:      sender,
		loc:         time.UTC,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    5 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendConfirmation sends the confirmation email for an appointment. Every
// caller, manual or automatic, funnels through the same claim and flag guard:
// the first caller sends, everyone else gets ErrAlreadySent. The sent flag is
// set only after the provider accepted the message.
func (d *ConfirmationDispatcher) SendConfirmation(ctx context.Context, appointmentID string) (*appointments.Appointment, error) {
	ctx, span := notifyTracer.Start(ctx, "notify.send_confirmation")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", appointmentID))

	appt, err := d.sendConfirmation(ctx, appointmentID)
	d.metrics.ObserveConfirmation(confirmationOutcome(err))
	if err != nil && !errors.Is(err, ErrAlreadySent) {
		span.RecordError(err)
	}
	return appt, err
}

func (d *ConfirmationDispatcher) sendConfirmation(ctx context.Context, appointmentID string) (*appointments.Appointment, error) {
	logger := d.logger.With("appointment_id", appointmentID)

	appt, err := d.eligible(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	token, claimed, err := d.claims.Claim(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadySent
	}
	keepClaim := false
	defer func() {
		if keepClaim {
			return
		}
		if err := d.claims.Release(context.WithoutCancel(ctx), appointmentID, token); err != nil {
			logger.Warn("failed to release confirmation claim", "error", err)
		}
	}()

	// a sender that finished between our read and claim has already set the flag
	appt, err = d.eligible(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	msg := BuildConfirmation(appt, d.loc)
	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		sendErr := d.sender.Send(ctx, msg)
		if sendErr != nil && errors.Is(sendErr, ErrRejected) {
			return struct{}{}, backoff.Permanent(sendErr)
		}
		return struct{}{}, sendErr
	},
		backoff.WithBackOff(d.newBackOff()),
		backoff.WithMaxTries(d.maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("confirmation send failed, retrying", "error", err, "attempt", attempts, "retry_in", next)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("notify: confirmation %s: %w", appointmentID, ctxErr)
		}
		logger.Error("confirmation delivery failed", "error", err, "attempts", attempts)
		return nil, fmt.Errorf("notify: confirmation %s after %d attempts: %w: %w", appointmentID, attempts, ErrDeliveryFailed, err)
	}

	// The email is out; the flag must land even if the caller went away.
	flipped, err := d.store.MarkConfirmationSent(context.WithoutCancel(ctx), appointmentID)
	if err != nil {
		// Holding the claim blocks a duplicate send until it expires.
		keepClaim = true
		logger.Error("confirmation sent but flag update failed", "error", err)
		return nil, fmt.Errorf("notify: mark %s sent: %w", appointmentID, err)
	}
	if !flipped {
		logger.Warn("confirmation flag was already set after send")
	}
	logger.Info("confirmation email sent", "to", appt.Caller.Email, "attempts", attempts)

	updated, err := d.store.Get(context.WithoutCancel(ctx), appointmentID)
	if err != nil {
		appt.ConfirmationEmailSent = true
		return appt, nil
	}
	return updated, nil
}

func (d *ConfirmationDispatcher) eligible(ctx context.Context, appointmentID string) (*appointments.Appointment, error) {
	appt, err := d.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.ConfirmationEmailSent {
		return nil, ErrAlreadySent
	}
	if appt.Status == appointments.StatusCancelled {
		return nil, ErrNotConfirmable
	}
	return appt, nil
}

func (d *ConfirmationDispatcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.baseDelay
	b.MaxInterval = d.maxDelay
	b.Multiplier = 2
	return b
}

// DispatchAsync sends the confirmation in the background. The send is
// detached from ctx cancellation because the booking it confirms has
// already committed.
func (d *ConfirmationDispatcher) DispatchAsync(ctx context.Context, appointmentID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx := context.WithoutCancel(ctx)
		_, err := d.SendConfirmation(sendCtx, appointmentID)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadySent):
			d.logger.Debug("automatic confirmation skipped", "appointment_id", appointmentID)
		default:
			d.logger.Error("automatic confirmation failed", "error", err, "appointment_id", appointmentID)
		}
	}()
}

// Wait blocks until background dispatches finish.
func (d *ConfirmationDispatcher) Wait() {
	d.wg.Wait()
}

func confirmationOutcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, ErrAlreadySent):
		return "already_sent"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrNotConfirmable):
		return "not_confirmable"
	default:
		return "error"
	}
}
