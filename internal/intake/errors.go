package intake

import "errors"

var (
	// ErrBookingExhausted is returned when every booking attempt lost its slot.
	// The call stays active in scheduling.
	ErrBookingExhausted = errors.New("booking attempts exhausted")

	// ErrNoAvailability is returned when no slot is free in the lookahead window.
	ErrNoAvailability = errors.New("no available slots")

	// ErrCallEnded is returned when the call hung up while work was in flight.
	ErrCallEnded = errors.New("call ended")

	// ErrUnknownEvent is returned for event types the orchestrator does not handle.
	ErrUnknownEvent = errors.New("unknown intake event")
)
