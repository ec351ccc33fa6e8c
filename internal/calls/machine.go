package calls

import (
	"fmt"
	"time"
)

// Event is an intake trigger delivered by the telephony collaborator or the orchestrator.
type Event string

const (
	EventGreetingCompleted Event = "greeting_completed"
	EventInfoCollected     Event = "info_collected"
	EventConsentResolved   Event = "consent_resolved"
	EventSlotBooked        Event = "slot_booked"
	EventWrappedUp         Event = "wrapped_up"
)

// intakeTransitions maps each state to the single event that leaves it.
var intakeTransitions = map[IntakeState]struct {
	on   Event
	next IntakeState
}{
	StateGreeting:       {EventGreetingCompleted, StateCollectingInfo},
	StateCollectingInfo: {EventInfoCollected, StateConsent},
	StateConsent:        {EventConsentResolved, StateScheduling},
	StateScheduling:     {EventSlotBooked, StateClosing},
	StateClosing:        {EventWrappedUp, StateDone},
}

// statusTransitions lists the legal moves on the connectivity axis.
var statusTransitions = map[Status][]Status{
	StatusRinging:    {StatusInProgress, StatusCompleted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// Expected returns the event that advances the given state, if any.
func Expected(state IntakeState) (Event, bool) {
	t, ok := intakeTransitions[state]
	return t.on, ok
}

// Advance moves the intake state exactly one step forward.
func Advance(call *Call, ev Event) error {
	return AdvanceAt(call, ev, time.Now().UTC())
}

// AdvanceAt is Advance with an explicit clock.
func AdvanceAt(call *Call, ev Event, at time.Time) error {
	if call.Status.Terminal() {
		return &TransitionError{State: call.State, Status: call.Status, Event: ev, Reason: "call already terminated"}
	}
	t, ok := intakeTransitions[call.State]
	if !ok {
		return &TransitionError{State: call.State, Status: call.Status, Event: ev, Reason: "intake already done"}
	}
	if t.on != ev {
		return &TransitionError{State: call.State, Status: call.Status, Event: ev, Reason: fmt.Sprintf("expected %q", t.on)}
	}
	if call.Status == StatusRinging {
		call.Status = StatusInProgress
	}
	call.History = append(call.History, Transition{Event: ev, From: call.State, To: t.next, At: at})
	call.State = t.next
	call.UpdatedAt = at
	return nil
}

// Answer marks a ringing call as connected. Answering a connected call is a no-op.
func Answer(call *Call) error {
	switch call.Status {
	case StatusRinging:
		return setStatus(call, StatusInProgress, time.Now().UTC())
	case StatusInProgress:
		return nil
	default:
		return ErrAlreadyTerminal
	}
}

// Terminate ends the call with completed or failed from any intake state.
// Terminating an already terminal call is a no-op.
func Terminate(call *Call, outcome Status) error {
	return TerminateAt(call, outcome, time.Now().UTC())
}

// TerminateAt is Terminate with an explicit clock.
func TerminateAt(call *Call, outcome Status, at time.Time) error {
	if !outcome.Terminal() {
		return fmt.Errorf("calls: terminate with %q: %w", outcome, ErrInvalidOutcome)
	}
	if call.Status.Terminal() {
		return nil
	}
	return setStatus(call, outcome, at)
}

func setStatus(call *Call, next Status, at time.Time) error {
	for _, allowed := range statusTransitions[call.Status] {
		if allowed == next {
			call.Status = next
			call.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("calls: status %s -> %s: %w", call.Status, next, ErrInvalidOutcome)
}
