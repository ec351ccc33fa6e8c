package calls

import (
	"errors"
	"fmt"
)

var (
	// ErrCallNotFound is returned when a call id is unknown.
	ErrCallNotFound = errors.New("call not found")

	// ErrDuplicateSession is returned when a session reference is already registered.
	ErrDuplicateSession = errors.New("call session already registered")

	// ErrInvalidTransition is returned when an intake event does not match the current state.
	ErrInvalidTransition = errors.New("invalid intake transition")

	// ErrAlreadyTerminal is returned when mutating a call whose status is completed or failed.
	ErrAlreadyTerminal = errors.New("call already terminal")

	// ErrConsentRequired blocks booking until the caller has consented.
	ErrConsentRequired = errors.New("consent required before booking")

	// ErrInvalidOutcome is returned when terminating with a non-terminal status.
	ErrInvalidOutcome = errors.New("invalid call outcome")

	// ErrCallerCaptured is returned when caller details are overwritten.
	ErrCallerCaptured = errors.New("caller details already captured")

	// ErrInvalidCaller is returned when caller details fail validation.
	ErrInvalidCaller = errors.New("invalid caller details")

	// ErrUnknownQuestion is returned for answers to questions outside the practice area.
	ErrUnknownQuestion = errors.New("unknown case question")

	// ErrStaleUpdate is returned when a write would end a terminated call's
	// finality or move its status or intake state backward.
	ErrStaleUpdate = errors.New("call changed since it was read")
)

// TransitionError describes a rejected intake event.
type TransitionError struct {
	State  IntakeState
	Status Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("calls: event %q not allowed in state %s (status %s): %s", e.Event, e.State, e.Status, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
