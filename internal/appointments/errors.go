package appointments

import "errors"

var (
	// ErrAppointmentNotFound is returned when an appointment id is unknown.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotConflict is returned when the requested slot is already held.
	ErrSlotConflict = errors.New("slot already reserved")

	// ErrCallerRequired is returned when booking a call without captured caller details.
	ErrCallerRequired = errors.New("caller details required before booking")

	// ErrStatusChanged is returned when a compare-and-set on booking status loses.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)
