package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calendar"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/internal/observability/metrics"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

var intakeTracer = otel.Tracer("voiceagent.internal.intake")

// Availability lists bookable slots.
type Availability interface {
	ListAvailable(ctx context.Context, daysAhead int) ([]calendar.CalendarSlot, error)
}

// Booker reserves a slot for a call.
type Booker interface {
	Book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error)
}

// Dispatcher schedules a confirmation email in the background.
type Dispatcher interface {
	DispatchAsync(ctx context.Context, appointmentID string)
}

// Auditor records consent and booking decisions for later review.
type Auditor interface {
	LogConsent(ctx context.Context, callID string, granted bool, state string) error
	LogBookingBlocked(ctx context.Context, callID, state, reason string) error
	LogAppointmentBooked(ctx context.Context, callID, appointmentID string, scheduledFor time.Time) error
	LogCallEnded(ctx context.Context, callID, outcome, state string) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAuditor records consent and booking decisions to a.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) {
		o.auditor = a
	}
}

// Config bounds the orchestrator's retries.
type Config struct {
	MaxBookingAttempts int
	DaysAhead          int
}

// session serializes work on one active call and carries its cancellation.
type session struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Orchestrator drives calls from greeting to a booked appointment.
type Orchestrator struct {
	calls        calls.Repository
	availability Availability
	booker       Booker
	dispatcher   Dispatcher
	cfg          Config
	metrics      *metrics.IntakeMetrics
	auditor      Auditor
	logger       *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewOrchestrator wires the intake collaborators.
func NewOrchestrator(repo calls.Repository, availability Availability, booker Booker, dispatcher Dispatcher, cfg Config, m *metrics.IntakeMetrics, logger *logging.Logger, opts ...Option) *Orchestrator {
	if repo == nil || availability == nil || booker == nil || dispatcher == nil {
		panic("intake: repository, availability, booker and dispatcher are required")
	}
	if cfg.MaxBookingAttempts <= 0 {
		cfg.MaxBookingAttempts = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		calls:        repo,
		availability: availability,
		booker:       booker,
		dispatcher:   dispatcher,
		cfg:          cfg,
		metrics:      m,
		logger:       logger,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartCall registers a new ringing call for an external session.
func (o *Orchestrator) StartCall(ctx context.Context, sessionRef string, area calls.PracticeArea) (*calls.Call, error) {
	if sessionRef == "" {
		return nil, fmt.Errorf("intake: session reference required")
	}
	if area == "" {
		area = calls.PracticeAreaUnspecified
	}
	if !area.Valid() {
		return nil, fmt.Errorf("intake: unknown practice area %q", area)
	}

	call := calls.New(uuid.NewString(), sessionRef, area, time.Now().UTC())
	if err := o.calls.Create(ctx, call); err != nil {
		return nil, err
	}
	o.session(call.ID)
	o.logger.ForCall(call.ID).Info("call started", "session_ref", sessionRef, "practice_area", area)
	return call, nil
}

// HandleEvent applies one telephony event to a call under the call's lock.
func (o *Orchestrator) HandleEvent(ctx context.Context, callID string, ev Event) (*Result, error) {
	if ev.Type == EventSchedule {
		appt, err := o.Schedule(ctx, callID, ev.PreferredTime)
		if err != nil {
			return nil, err
		}
		call, err := o.calls.Get(ctx, callID)
		if err != nil {
			return nil, err
		}
		return &Result{Call: call, Appointment: appt}, nil
	}

	sess := o.session(callID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	call, err := o.calls.Get(ctx, callID)
	if err != nil {
		o.dropFinished(callID, sess, err)
		return nil, err
	}
	if call.Status.Terminal() {
		defer o.dropSession(callID, sess)
	}
	logger := o.logger.ForCall(callID)

	switch ev.Type {
	case EventAnswered:
		err = calls.Answer(call)
	case EventCallerDetails:
		if ev.Caller == nil {
			err = calls.ErrInvalidCaller
			break
		}
		err = calls.CaptureCaller(call, *ev.Caller)
	case EventCaseAnswer:
		err = calls.RecordAnswer(call, ev.QuestionKey, ev.Answer)
	case EventConsent:
		// consent is only asked once the caller reaches the consent stage
		if call.State != calls.StateConsent {
			err = &calls.TransitionError{State: call.State, Status: call.Status, Event: calls.EventConsentResolved, Reason: "consent is asked in the consent stage"}
			break
		}
		if ev.Granted {
			if err = calls.RecordConsent(call); err != nil {
				break
			}
		}
		err = o.advance(call, calls.EventConsentResolved)
	case EventGreetingCompleted, EventInfoCollected, EventWrappedUp:
		err = o.advance(call, calls.Event(ev.Type))
	default:
		return nil, fmt.Errorf("intake: %q: %w", ev.Type, ErrUnknownEvent)
	}
	if err != nil {
		logger.Warn("intake event rejected", "event", ev.Type, "error", err)
		return nil, err
	}

	if err := o.calls.Update(ctx, call); err != nil {
		return nil, fmt.Errorf("intake: persist call: %w", err)
	}
	logger.Info("intake event applied", "event", ev.Type, "state", call.State, "status", call.Status)
	if ev.Type == EventConsent {
		o.audit(ctx, callID, func(ctx context.Context, a Auditor) error {
			return a.LogConsent(ctx, callID, ev.Granted, string(calls.StateConsent))
		})
	}

	res := &Result{Call: call}
	if call.State == calls.StateCollectingInfo {
		if q, ok := calls.NextQuestion(call); ok {
			res.NextQuestion = &q
		}
	}
	return res, nil
}

// Schedule books a slot for a consenting call in the scheduling state, then
// schedules the confirmation email and moves the call to closing. A slot lost
// to another caller triggers a fresh listing, up to MaxBookingAttempts.
func (o *Orchestrator) Schedule(ctx context.Context, callID string, preferred *time.Time) (*appointments.Appointment, error) {
	sess := o.session(callID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx, span := intakeTracer.Start(ctx, "intake.schedule")
	defer span.End()
	span.SetAttributes(attribute.String("call.id", callID))

	if sess.ctx.Err() != nil {
		return nil, fmt.Errorf("intake: schedule %s: %w", callID, ErrCallEnded)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(sess.ctx, func() { cancel(ErrCallEnded) })
	defer stop()

	appt, err := o.schedule(ctx, callID, preferred)
	if err != nil {
		o.dropFinished(callID, sess, err)
		if errors.Is(context.Cause(ctx), ErrCallEnded) {
			err = fmt.Errorf("intake: schedule %s: %w", callID, ErrCallEnded)
		}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	return appt, nil
}

func (o *Orchestrator) schedule(ctx context.Context, callID string, preferred *time.Time) (*appointments.Appointment, error) {
	logger := o.logger.ForCall(callID)

	call, err := o.calls.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return nil, calls.ErrAlreadyTerminal
	}
	if call.State != calls.StateScheduling {
		return nil, &calls.TransitionError{State: call.State, Status: call.Status, Event: calls.EventSlotBooked, Reason: "booking requires the scheduling state"}
	}
	if err := calls.RequireConsent(call); err != nil {
		logger.Warn("booking blocked: consent required")
		o.metrics.ObserveBooking("consent_required")
		o.audit(ctx, callID, func(ctx context.Context, a Auditor) error {
			return a.LogBookingBlocked(ctx, callID, string(call.State), err.Error())
		})
		return nil, err
	}

	for attempt := 1; attempt <= o.cfg.MaxBookingAttempts; attempt++ {
		if err := context.Cause(ctx); err != nil {
			return nil, err
		}
		slots, err := o.availability.ListAvailable(ctx, o.cfg.DaysAhead)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			return nil, ErrNoAvailability
		}
		slot := chooseSlot(slots, preferred)

		if err := context.Cause(ctx); err != nil {
			return nil, err
		}
		appt, err := o.booker.Book(ctx, call, slot)
		if errors.Is(err, appointments.ErrSlotConflict) {
			logger.Info("slot taken, re-listing", "slot", slot.Label, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		// The appointment is committed. A hang-up from here on only skips the
		// follow-up work.
		o.audit(ctx, callID, func(ctx context.Context, a Auditor) error {
			return a.LogAppointmentBooked(ctx, callID, appt.ID, appt.ScheduledFor)
		})
		if context.Cause(ctx) != nil {
			logger.Warn("call ended after booking; confirmation not scheduled", "appointment_id", appt.ID)
			return appt, nil
		}
		o.dispatcher.DispatchAsync(ctx, appt.ID)

		persistCtx := context.WithoutCancel(ctx)
		if err := o.advance(call, calls.EventSlotBooked); err != nil {
			return appt, err
		}
		if err := o.calls.Update(persistCtx, call); err != nil {
			if errors.Is(err, calls.ErrStaleUpdate) {
				logger.Warn("call changed elsewhere during scheduling; appointment kept", "appointment_id", appt.ID, "error", err)
				return appt, nil
			}
			return appt, fmt.Errorf("intake: persist call: %w", err)
		}
		logger.Info("appointment scheduled", "appointment_id", appt.ID, "slot", slot.Label, "attempt", attempt)
		return appt, nil
	}

	logger.Warn("booking attempts exhausted", "attempts", o.cfg.MaxBookingAttempts)
	return nil, fmt.Errorf("intake: %d attempts: %w", o.cfg.MaxBookingAttempts, ErrBookingExhausted)
}

// Hangup terminates the call. In-flight scheduling observes the hang-up at
// its next step boundary.
func (o *Orchestrator) Hangup(ctx context.Context, callID string, outcome calls.Status) (*calls.Call, error) {
	if !outcome.Terminal() {
		return nil, fmt.Errorf("intake: hangup with %q: %w", outcome, calls.ErrInvalidOutcome)
	}
	sess := o.session(callID)
	sess.cancel()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	call, alreadyEnded, err := o.terminate(ctx, callID, outcome)
	if err != nil {
		o.dropFinished(callID, sess, err)
		return nil, err
	}

	o.dropSession(callID, sess)
	if alreadyEnded {
		return call, nil
	}
	o.audit(ctx, callID, func(ctx context.Context, a Auditor) error {
		return a.LogCallEnded(ctx, callID, string(call.Status), string(call.State))
	})

	o.logger.ForCall(callID).Info("call ended", "status", call.Status, "state", call.State)
	return call, nil
}

// terminate ends the stored call. A copy that went stale because another
// instance moved the call on is re-read and terminated again.
func (o *Orchestrator) terminate(ctx context.Context, callID string, outcome calls.Status) (*calls.Call, bool, error) {
	const maxAttempts = 3
	var err error
	for range maxAttempts {
		var call *calls.Call
		call, err = o.calls.Get(ctx, callID)
		if err != nil {
			return nil, false, err
		}
		if call.Status.Terminal() {
			return call, true, nil
		}
		if err = calls.Terminate(call, outcome); err != nil {
			return nil, false, err
		}
		err = o.calls.Update(ctx, call)
		if err == nil {
			return call, false, nil
		}
		if !errors.Is(err, calls.ErrStaleUpdate) {
			break
		}
	}
	return nil, false, fmt.Errorf("intake: persist call: %w", err)
}

// Snapshot returns the current state view of a call.
func (o *Orchestrator) Snapshot(ctx context.Context, callID string) (calls.Snapshot, error) {
	call, err := o.calls.Get(ctx, callID)
	if err != nil {
		return calls.Snapshot{}, err
	}
	return call.Snapshot(), nil
}

func (o *Orchestrator) advance(call *calls.Call, ev calls.Event) error {
	err := calls.Advance(call, ev)
	o.metrics.ObserveTransition(string(ev), err)
	return err
}

// audit writes through the auditor when one is configured. Failures are
// logged and never undo the intake step.
func (o *Orchestrator) audit(ctx context.Context, callID string, write func(context.Context, Auditor) error) {
	if o.auditor == nil {
		return
	}
	if err := write(context.WithoutCancel(ctx), o.auditor); err != nil {
		o.logger.ForCall(callID).Warn("audit write failed", "error", err)
	}
}

func (o *Orchestrator) session(callID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[callID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sess = &session{ctx: ctx, cancel: cancel}
		o.sessions[callID] = sess
	}
	return sess
}

func (o *Orchestrator) dropSession(callID string, sess *session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions[callID] == sess {
		delete(o.sessions, callID)
		sess.cancel()
	}
}

// dropFinished forgets sessions opened for calls that do not exist or have
// already ended, so late events never leave an entry behind.
func (o *Orchestrator) dropFinished(callID string, sess *session, err error) {
	if errors.Is(err, calls.ErrCallNotFound) || errors.Is(err, calls.ErrAlreadyTerminal) {
		o.dropSession(callID, sess)
	}
}

// chooseSlot keeps the caller's preferred time when it is still free,
// otherwise takes the first slot after it, otherwise the earliest.
func chooseSlot(slots []calendar.CalendarSlot, preferred *time.Time) calendar.CalendarSlot {
	if preferred != nil {
		for _, s := range slots {
			if !s.DateTime.Before(*preferred) {
				return s
			}
		}
	}
	return slots[0]
}
