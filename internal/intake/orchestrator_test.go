package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calendar"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

var testNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

type fixedSource []time.Time

func (f fixedSource) RawSlots(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, s := range f {
		if !s.Before(from) && !s.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// conflictBooker loses the first n slots it is asked for.
type conflictBooker struct {
	mu       sync.Mutex
	lose     int
	attempts int
	next     Booker
}

func (b *conflictBooker) Book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error) {
	b.mu.Lock()
	b.attempts++
	lost := b.attempts <= b.lose
	b.mu.Unlock()
	if lost {
		return nil, appointments.ErrSlotConflict
	}
	return b.next.Book(ctx, call, slot)
}

// blockingBooker parks until the booking context is cancelled.
type blockingBooker struct {
	started chan struct{}
}

func (b *blockingBooker) Book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	orch       *Orchestrator
	calls      *calls.InMemoryRepository
	appts      *appointments.InMemoryRepository
	dispatcher *recordingDispatcher
	slots      []time.Time
}

func newFixture(t *testing.T, wrap func(Booker) Booker) *fixture {
	t.Helper()
	slots := []time.Time{
		time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC),
	}
	callRepo := calls.NewInMemoryRepository()
	apptRepo := appointments.NewInMemoryRepository()
	availability := calendar.NewAvailabilityService(fixedSource(slots), apptRepo, logging.Discard(),
		calendar.WithClock(func() time.Time { return testNow }))
	var booker Booker = appointments.NewBooker(apptRepo, nil, nil, logging.Discard())
	if wrap != nil {
		booker = wrap(booker)
	}
	dispatcher := &recordingDispatcher{}
	orch := NewOrchestrator(callRepo, availability, booker, dispatcher, Config{MaxBookingAttempts: 3, DaysAhead: 7}, nil, logging.Discard())
	return &fixture{orch: orch, calls: callRepo, appts: apptRepo, dispatcher: dispatcher, slots: slots}
}

func (f *fixture) send(t *testing.T, callID string, ev Event) *Result {
	t.Helper()
	res, err := f.orch.HandleEvent(context.Background(), callID, ev)
	if err != nil {
		t.Fatalf("event %s: %v", ev.Type, err)
	}
	return res
}

// toScheduling drives a lemon law call up to the scheduling stage.
func (f *fixture) toScheduling(t *testing.T, sessionRef string, consent bool) *calls.Call {
	t.Helper()
	call, err := f.orch.StartCall(context.Background(), sessionRef, calls.PracticeAreaLemonLaw)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.send(t, call.ID, Event{Type: EventAnswered})
	f.send(t, call.ID, Event{Type: EventGreetingCompleted})
	f.send(t, call.ID, Event{Type: EventCallerDetails, Caller: &calls.Caller{Name: "Jane Doe", Email: "Jane@Example.com", Phone: "(555) 010-2000"}})
	f.send(t, call.ID, Event{Type: EventInfoCollected})
	res := f.send(t, call.ID, Event{Type: EventConsent, Granted: consent})
	if res.Call.State != calls.StateScheduling {
		t.Fatalf("expected scheduling, got %s", res.Call.State)
	}
	return res.Call
}

func TestFullIntakeFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	call, err := f.orch.StartCall(ctx, "CA-100", calls.PracticeAreaLemonLaw)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.Status != calls.StatusRinging || call.State != calls.StateGreeting {
		t.Fatalf("unexpected new call %+v", call)
	}

	res := f.send(t, call.ID, Event{Type: EventAnswered})
	if res.Call.Status != calls.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", res.Call.Status)
	}
	res = f.send(t, call.ID, Event{Type: EventGreetingCompleted})
	if res.NextQuestion == nil || res.NextQuestion.Key != "vehicle_details" {
		t.Fatalf("expected first lemon law question, got %+v", res.NextQuestion)
	}
	res = f.send(t, call.ID, Event{Type: EventCaseAnswer, QuestionKey: "vehicle_details", Answer: " 2022 Honda Civic "})
	if res.NextQuestion == nil || res.NextQuestion.Key != "purchase_date" {
		t.Fatalf("expected purchase_date next, got %+v", res.NextQuestion)
	}
	f.send(t, call.ID, Event{Type: EventCallerDetails, Caller: &calls.Caller{Name: "Jane Doe", Email: "jane@example.com", Phone: "5550102000"}})
	f.send(t, call.ID, Event{Type: EventInfoCollected})
	f.send(t, call.ID, Event{Type: EventConsent, Granted: true})

	preferred := f.slots[1]
	res = f.send(t, call.ID, Event{Type: EventSchedule, PreferredTime: &preferred})
	if res.Appointment == nil {
		t.Fatal("expected an appointment")
	}
	if !res.Appointment.ScheduledFor.Equal(preferred) || res.Appointment.Status != appointments.StatusConfirmed {
		t.Fatalf("unexpected appointment %+v", res.Appointment)
	}
	if res.Call.State != calls.StateClosing {
		t.Fatalf("expected closing, got %s", res.Call.State)
	}
	if got := f.dispatcher.dispatched(); len(got) != 1 || got[0] != res.Appointment.ID {
		t.Fatalf("expected one dispatch for %s, got %v", res.Appointment.ID, got)
	}

	res = f.send(t, call.ID, Event{Type: EventWrappedUp})
	if res.Call.State != calls.StateDone {
		t.Fatalf("expected done, got %s", res.Call.State)
	}

	ended, err := f.orch.Hangup(ctx, call.ID, calls.StatusCompleted)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if ended.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %s", ended.Status)
	}

	stored, _ := f.calls.Get(ctx, call.ID)
	if stored.Answers["vehicle_details"] != "2022 Honda Civic" || !stored.ConsentToBook {
		t.Fatalf("stored call lost data: %+v", stored)
	}
	if len(stored.History) != 5 {
		t.Fatalf("expected 5 transitions, got %d", len(stored.History))
	}
}

func TestScheduleWithoutConsentBooksNothing(t *testing.T) {
	f := newFixture(t, nil)
	call := f.toScheduling(t, "CA-1", false)

	_, err := f.orch.Schedule(context.Background(), call.ID, nil)
	if !errors.Is(err, calls.ErrConsentRequired) {
		t.Fatalf("expected ErrConsentRequired, got %v", err)
	}
	list, _ := f.appts.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("expected no appointments, got %d", len(list))
	}
	if len(f.dispatcher.dispatched()) != 0 {
		t.Fatal("no confirmation should be dispatched")
	}
	stored, _ := f.calls.Get(context.Background(), call.ID)
	if stored.State != calls.StateScheduling {
		t.Fatalf("call should stay in scheduling, got %s", stored.State)
	}
}

func TestScheduleOutsideSchedulingState(t *testing.T) {
	f := newFixture(t, nil)
	call, _ := f.orch.StartCall(context.Background(), "CA-1", calls.PracticeAreaPersonalInjury)

	_, err := f.orch.Schedule(context.Background(), call.ID, nil)
	if !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestScheduleRetriesAfterConflict(t *testing.T) {
	var cb *conflictBooker
	f := newFixture(t, func(next Booker) Booker {
		cb = &conflictBooker{lose: 2, next: next}
		return cb
	})
	call := f.toScheduling(t, "CA-1", true)

	appt, err := f.orch.Schedule(context.Background(), call.ID, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if cb.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cb.attempts)
	}
	if !appt.ScheduledFor.Equal(f.slots[0]) {
		t.Fatalf("expected earliest slot, got %s", appt.ScheduledFor)
	}
}

func TestScheduleExhaustedKeepsCallInScheduling(t *testing.T) {
	f := newFixture(t, func(next Booker) Booker {
		return &conflictBooker{lose: 100, next: next}
	})
	call := f.toScheduling(t, "CA-1", true)

	_, err := f.orch.Schedule(context.Background(), call.ID, nil)
	if !errors.Is(err, ErrBookingExhausted) {
		t.Fatalf("expected ErrBookingExhausted, got %v", err)
	}
	stored, _ := f.calls.Get(context.Background(), call.ID)
	if stored.State != calls.StateScheduling || stored.Status.Terminal() {
		t.Fatalf("call should remain active in scheduling, got %s/%s", stored.State, stored.Status)
	}
}

func TestScheduleSecondCallerGetsNextSlot(t *testing.T) {
	f := newFixture(t, nil)
	first := f.toScheduling(t, "CA-1", true)
	second := f.toScheduling(t, "CA-2", true)
	preferred := f.slots[0]

	a1, err := f.orch.Schedule(context.Background(), first.ID, &preferred)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	a2, err := f.orch.Schedule(context.Background(), second.ID, &preferred)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a1.ScheduledFor.Equal(a2.ScheduledFor) {
		t.Fatalf("both callers booked %s", a1.ScheduledFor)
	}
	if !a2.ScheduledFor.Equal(f.slots[1]) {
		t.Fatalf("expected second caller on the next slot, got %s", a2.ScheduledFor)
	}
}

func TestHangupCancelsScheduling(t *testing.T) {
	bb := &blockingBooker{started: make(chan struct{})}
	f := newFixture(t, func(Booker) Booker { return bb })
	call := f.toScheduling(t, "CA-1", true)

	errc := make(chan error, 1)
	go func() {
		_, err := f.orch.Schedule(context.Background(), call.ID, nil)
		errc <- err
	}()
	<-bb.started

	ended, err := f.orch.Hangup(context.Background(), call.ID, calls.StatusFailed)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if ended.Status != calls.StatusFailed {
		t.Fatalf("expected failed, got %s", ended.Status)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrCallEnded) {
			t.Fatalf("expected ErrCallEnded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not observe the hang-up")
	}
	if len(f.dispatcher.dispatched()) != 0 {
		t.Fatal("no confirmation should be dispatched")
	}
}

func TestEventsAfterHangupRejected(t *testing.T) {
	f := newFixture(t, nil)
	call := f.toScheduling(t, "CA-1", true)
	if _, err := f.orch.Hangup(context.Background(), call.ID, calls.StatusCompleted); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	if _, err := f.orch.Schedule(context.Background(), call.ID, nil); !errors.Is(err, calls.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := f.orch.HandleEvent(context.Background(), call.ID, Event{Type: EventWrappedUp}); !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	again, err := f.orch.Hangup(context.Background(), call.ID, calls.StatusFailed)
	if err != nil {
		t.Fatalf("repeat hangup: %v", err)
	}
	if again.Status != calls.StatusCompleted {
		t.Fatalf("outcome must not change once terminal, got %s", again.Status)
	}
}

func TestHandleEventErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	call, _ := f.orch.StartCall(ctx, "CA-1", calls.PracticeAreaLemonLaw)

	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: "dance"}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: EventConsent, Granted: true}); !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("consent before consent stage: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: EventInfoCollected}); !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("skipping a stage: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: EventCallerDetails}); !errors.Is(err, calls.ErrInvalidCaller) {
		t.Fatalf("missing caller: expected ErrInvalidCaller, got %v", err)
	}

	stored, _ := f.calls.Get(ctx, call.ID)
	if stored.ConsentToBook || stored.State != calls.StateGreeting {
		t.Fatalf("rejected events must not change the call: %+v", stored)
	}
}

func TestUnknownCallDropsSession(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.orch.HandleEvent(context.Background(), "nope", Event{Type: EventAnswered}); !errors.Is(err, calls.ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
	if _, err := f.orch.Schedule(context.Background(), "nope", nil); !errors.Is(err, calls.ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
	f.orch.mu.Lock()
	defer f.orch.mu.Unlock()
	if len(f.orch.sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(f.orch.sessions))
	}
}

func TestStartCallValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.orch.StartCall(ctx, "", calls.PracticeAreaLemonLaw); err == nil {
		t.Fatal("expected error for empty session")
	}
	if _, err := f.orch.StartCall(ctx, "CA-1", "tax_law"); err == nil {
		t.Fatal("expected error for unknown practice area")
	}
	call, err := f.orch.StartCall(ctx, "CA-1", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.PracticeArea != calls.PracticeAreaUnspecified {
		t.Fatalf("expected unspecified area, got %s", call.PracticeArea)
	}
	if _, err := f.orch.StartCall(ctx, "CA-1", ""); !errors.Is(err, calls.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestChooseSlot(t *testing.T) {
	slots := []calendar.CalendarSlot{
		calendar.NewSlot(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)),
		calendar.NewSlot(time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)),
	}
	between := time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC)
	late := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)

	if got := chooseSlot(slots, nil); got.Key() != slots[0].Key() {
		t.Fatalf("no preference: got %s", got.Label)
	}
	if got := chooseSlot(slots, &between); got.Key() != slots[1].Key() {
		t.Fatalf("between: got %s", got.Label)
	}
	if got := chooseSlot(slots, &late); got.Key() != slots[0].Key() {
		t.Fatalf("past the last slot: got %s", got.Label)
	}
}

func sessionCount(o *Orchestrator) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func TestLateEventsAfterHangupLeaveNoSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	call := f.toScheduling(t, "CA-1", true)
	if _, err := f.orch.Hangup(ctx, call.ID, calls.StatusCompleted); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: EventWrappedUp}); err == nil {
		t.Fatal("expected late event to be rejected")
	}
	if _, err := f.orch.HandleEvent(ctx, call.ID, Event{Type: EventAnswered}); !errors.Is(err, calls.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := f.orch.Schedule(ctx, call.ID, nil); !errors.Is(err, calls.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := f.orch.Hangup(ctx, call.ID, calls.StatusFailed); err != nil {
		t.Fatalf("repeat hangup: %v", err)
	}
	if n := sessionCount(f.orch); n != 0 {
		t.Fatalf("ended call still holds %d session(s)", n)
	}
}

// staleReadRepo serves an old copy of the call on the first Get, as a
// second instance would after the call moved on elsewhere.
type staleReadRepo struct {
	calls.Repository
	mu    sync.Mutex
	stale *calls.Call
}

func (r *staleReadRepo) Get(ctx context.Context, id string) (*calls.Call, error) {
	r.mu.Lock()
	stale := r.stale
	r.stale = nil
	r.mu.Unlock()
	if stale != nil && stale.ID == id {
		return stale.Clone(), nil
	}
	return r.Repository.Get(ctx, id)
}

func TestHangupRetriesAfterStaleRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	call := f.toScheduling(t, "CA-1", true)

	// Another instance books and moves the stored call to closing.
	moved, _ := f.calls.Get(ctx, call.ID)
	if err := calls.Advance(moved, calls.EventSlotBooked); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := f.calls.Update(ctx, moved); err != nil {
		t.Fatalf("update: %v", err)
	}

	repo := &staleReadRepo{Repository: f.calls, stale: call}
	orch := NewOrchestrator(repo, f.orch.availability, f.orch.booker, f.dispatcher, f.orch.cfg, nil, logging.Discard())

	ended, err := orch.Hangup(ctx, call.ID, calls.StatusFailed)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if ended.Status != calls.StatusFailed || ended.State != calls.StateClosing {
		t.Fatalf("expected failed at closing, got %s/%s", ended.Status, ended.State)
	}
	stored, _ := f.calls.Get(ctx, call.ID)
	if stored.Status != calls.StatusFailed || stored.State != calls.StateClosing {
		t.Fatalf("stored call not terminated in place: %s/%s", stored.Status, stored.State)
	}
}

type bookerFunc func(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error)

func (fn bookerFunc) Book(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error) {
	return fn(ctx, call, slot)
}

func TestScheduleKeepsAppointmentWhenCallEndedElsewhere(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(next Booker) Booker {
		return bookerFunc(func(ctx context.Context, call *calls.Call, slot calendar.CalendarSlot) (*appointments.Appointment, error) {
			appt, err := next.Book(ctx, call, slot)
			if err != nil {
				return nil, err
			}
			// The caller hangs up on another instance while the booking commits.
			stored, _ := f.calls.Get(ctx, call.ID)
			_ = calls.Terminate(stored, calls.StatusFailed)
			if err := f.calls.Update(ctx, stored); err != nil {
				t.Errorf("terminate elsewhere: %v", err)
			}
			return appt, nil
		})
	})
	ctx := context.Background()
	call := f.toScheduling(t, "CA-1", true)

	appt, err := f.orch.Schedule(ctx, call.ID, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if appt == nil || appt.Status != appointments.StatusConfirmed {
		t.Fatalf("expected confirmed appointment, got %+v", appt)
	}
	stored, _ := f.calls.Get(ctx, call.ID)
	if stored.Status != calls.StatusFailed || stored.State != calls.StateScheduling {
		t.Fatalf("terminated call must not be revived, got %s/%s", stored.Status, stored.State)
	}
}
