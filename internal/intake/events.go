package intake

import (
	"time"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calls"
)

// EventType names an input from the telephony collaborator.
type EventType string

const (
	EventAnswered          EventType = "call_answered"
	EventGreetingCompleted EventType = EventType(calls.EventGreetingCompleted)
	EventCallerDetails     EventType = "caller_details"
	EventCaseAnswer        EventType = "case_answer"
	EventInfoCollected     EventType = EventType(calls.EventInfoCollected)
	EventConsent           EventType = "consent"
	EventSchedule          EventType = "schedule"
	EventWrappedUp         EventType = EventType(calls.EventWrappedUp)
)

// Event is one telephony input for a call. Only the fields relevant to Type are read.
type Event struct {
	Type          EventType     `json:"type"`
	Caller        *calls.Caller `json:"caller,omitempty"`
	QuestionKey   string        `json:"question_key,omitempty"`
	Answer        string        `json:"answer,omitempty"`
	Granted       bool          `json:"granted,omitempty"`
	PreferredTime *time.Time    `json:"preferred_time,omitempty"`
}

// Result is the call after an event, plus whatever the event produced.
type Result struct {
	Call         *calls.Call               `json:"call"`
	NextQuestion *calls.Question           `json:"next_question,omitempty"`
	Appointment  *appointments.Appointment `json:"appointment,omitempty"`
}
