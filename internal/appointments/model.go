package appointments

import (
	"encoding/json"
	"time"

	"github.com/haseebbuilds/voice-agent/internal/calls"
)

// Status is the booking status of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is a booked consultation. The caller is copied at booking time.
type Appointment struct {
	ID                    string             `json:"id"`
	CallID                string             `json:"call_id"`
	Caller                calls.Caller       `json:"caller"`
	PracticeArea          calls.PracticeArea `json:"practice_area"`
	ScheduledFor          time.Time          `json:"scheduled_for"`
	Status                Status             `json:"booking_status"`
	ConfirmationEmailSent bool               `json:"confirmation_email_sent"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// In returns a copy whose scheduled time is expressed in loc.
func (a Appointment) In(loc *time.Location) Appointment {
	if loc != nil {
		a.ScheduledFor = a.ScheduledFor.In(loc)
	}
	return a
}

// MarshalJSON adds the date and time parts the dashboard renders.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		AppointmentDate string `json:"appointment_date"`
		AppointmentTime string `json:"appointment_time"`
	}{
		alias:           alias(a),
		AppointmentDate: a.ScheduledFor.Format("2006-01-02"),
		AppointmentTime: a.ScheduledFor.Format("15:04"),
	})
}
