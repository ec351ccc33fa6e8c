package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haseebbuilds/voice-agent/internal/calendar"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/internal/observability/metrics"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

var bookerTracer = otel.Tracer("voiceagent.internal.appointments")

// Booker reserves slots and creates appointments.
type Booker struct {
	repo    Repository
	locker  SlotLocker
	metrics *metrics.IntakeMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewBooker constructs a booker. A nil locker falls back to an in-process one.
func NewBooker(repo Repository, locker SlotLocker, m *metrics.IntakeMetrics, logger *logging.Logger) *Booker {
	if repo == nil {
		panic("appointments: repository required")
	}
	if locker == nil {
		locker = NewMemorySlotLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Booker{
		repo:    repo,
		locker:  locker,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Book reserves slot for call. Exactly one of any set of racing attempts for
// the same timestamp succeeds; the rest fail with ErrSlotConflict.
func (b *Booker) Book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*Appointment, error) {
	ctx, span := bookerTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(attribute.String("calendar.slot", slot.DateTime.Format(time.RFC3339)))

	appt, err := b.book(ctx, call, slot)
	if err != nil {
		span.RecordError(err)
		b.metrics.ObserveBooking(bookingOutcome(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	b.metrics.ObserveBooking("confirmed")
	b.logger.Info("appointment booked", "appointment_id", appt.ID, "call_id", appt.CallID, "scheduled_for", appt.ScheduledFor)
	return appt, nil
}

func (b *Booker) book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*Appointment, error) {
	if err := calls.RequireConsent(call); err != nil {
		return nil, err
	}
	if call.Caller == nil {
		return nil, ErrCallerRequired
	}
	if slot.DateTime.IsZero() {
		return nil, calendar.ErrInvalidSlot
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release, err := b.locker.TryLock(ctx, slot.DateTime)
	if err != nil {
		return nil, err
	}
	defer release()

	taken, err := b.repo.HasActiveAt(ctx, slot.DateTime)
	if err != nil {
		return nil, fmt.Errorf("appointments: check slot: %w", err)
	}
	if taken {
		return nil, ErrSlotConflict
	}

	now := b.now()
	appt := &Appointment{
		ID:           uuid.NewString(),
		CallID:       call.ID,
		Caller:       *call.Caller,
		PracticeArea: call.PracticeArea,
		ScheduledFor: slot.DateTime,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.repo.Insert(ctx, appt); err != nil {
		return nil, err
	}

	// No external approval step: pending is confirmed straight away.
	confirmed, err := b.repo.TransitionStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	if err != nil {
		// A failed confirm must not leave the pending row holding the slot.
		if _, cancelErr := b.repo.TransitionStatus(context.WithoutCancel(ctx), appt.ID, StatusPending, StatusCancelled); cancelErr != nil {
			b.logger.Error("failed to cancel unconfirmed appointment", "appointment_id", appt.ID, "error", cancelErr)
		}
		return nil, fmt.Errorf("appointments: confirm %s: %w", appt.ID, err)
	}
	return confirmed, nil
}

// Cancel marks an appointment cancelled and frees its slot. Cancelling an
// already cancelled appointment returns it unchanged.
func (b *Booker) Cancel(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := bookerTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	for {
		appt, err := b.repo.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if appt.Status == StatusCancelled {
			return appt, nil
		}
		updated, err := b.repo.TransitionStatus(ctx, id, appt.Status, StatusCancelled)
		if errors.Is(err, ErrStatusChanged) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		b.metrics.ObserveBooking("cancelled")
		b.logger.Info("appointment cancelled", "appointment_id", id, "call_id", updated.CallID)
		return updated, nil
	}
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, calls.ErrConsentRequired):
		return "consent_required"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
