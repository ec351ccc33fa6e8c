package notify

import "errors"

var (
	// ErrAlreadySent is returned when the confirmation was already sent or a send is in flight.
	ErrAlreadySent = errors.New("confirmation already sent")

	// ErrDeliveryFailed is returned when every send attempt failed. The appointment stays eligible for a manual resend.
	ErrDeliveryFailed = errors.New("confirmation delivery failed")

	// ErrNotConfirmable is returned for cancelled appointments.
	ErrNotConfirmable = errors.New("appointment cannot be confirmed")
)
