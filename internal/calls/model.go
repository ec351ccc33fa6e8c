package calls

import (
	"time"
)

// PracticeArea is the legal category a caller is seeking help with.
type PracticeArea string

const (
	PracticeAreaUnspecified    PracticeArea = "unspecified"
	PracticeAreaLemonLaw       PracticeArea = "lemon_law"
	PracticeAreaPersonalInjury PracticeArea = "personal_injury"
)

// Valid reports whether the area is one of the known categories.
func (p PracticeArea) Valid() bool {
	switch p {
	case PracticeAreaUnspecified, PracticeAreaLemonLaw, PracticeAreaPersonalInjury:
		return true
	}
	return false
}

// DisplayName is the human label used in emails and prompts.
func (p PracticeArea) DisplayName() string {
	switch p {
	case PracticeAreaLemonLaw:
		return "Lemon Law"
	case PracticeAreaPersonalInjury:
		return "Personal Injury"
	default:
		return "General"
	}
}

// Status is the connectivity axis of a call.
type Status string

const (
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the connectivity axis. Both terminal
// statuses share the last rank; unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusRinging:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// IntakeState is the conversational stage of a call.
type IntakeState string

const (
	StateGreeting       IntakeState = "greeting"
	StateCollectingInfo IntakeState = "collecting_info"
	StateConsent        IntakeState = "consent"
	StateScheduling     IntakeState = "scheduling"
	StateClosing        IntakeState = "closing"
	StateDone           IntakeState = "done"
)

// intakeOrder is the only legal progression of intake states.
var intakeOrder = []IntakeState{
	StateGreeting,
	StateCollectingInfo,
	StateConsent,
	StateScheduling,
	StateClosing,
	StateDone,
}

// Rank returns the position of the state in the intake order, or -1.
func (s IntakeState) Rank() int {
	for i, st := range intakeOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is at or past other in the intake order.
func (s IntakeState) AtLeast(other IntakeState) bool {
	return s.Rank() >= other.Rank() && other.Rank() >= 0
}

// Caller holds the contact details captured during intake.
type Caller struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Transition records one intake state change.
type Transition struct {
	Event Event       `json:"event"`
	From  IntakeState `json:"from"`
	To    IntakeState `json:"to"`
	At    time.Time   `json:"at"`
}

// Call is a single intake phone call and its audit record.
type Call struct {
	ID            string            `json:"id"`
	SessionRef    string            `json:"twilio_call_sid"`
	PracticeArea  PracticeArea      `json:"practice_area"`
	Status        Status            `json:"call_status"`
	State         IntakeState       `json:"current_state"`
	ConsentToBook bool              `json:"consent_to_book"`
	Caller        *Caller           `json:"caller,omitempty"`
	Answers       map[string]string `json:"answers,omitempty"`
	History       []Transition      `json:"history,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// New returns a ringing call at the greeting stage.
func New(id, sessionRef string, area PracticeArea, now time.Time) *Call {
	if area == "" {
		area = PracticeAreaUnspecified
	}
	return &Call{
		ID:           id,
		SessionRef:   sessionRef,
		PracticeArea: area,
		Status:       StatusRinging,
		State:        StateGreeting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so stored calls are never shared with callers.
func (c *Call) Clone() *Call {
	if c == nil {
		return nil
	}
	out := *c
	if c.Caller != nil {
		caller := *c.Caller
		out.Caller = &caller
	}
	if c.Answers != nil {
		out.Answers = make(map[string]string, len(c.Answers))
		for k, v := range c.Answers {
			out.Answers[k] = v
		}
	}
	if c.History != nil {
		out.History = append([]Transition(nil), c.History...)
	}
	return &out
}

// Snapshot is the lightweight state view polled by the dashboard.
type Snapshot struct {
	CallID        string      `json:"call_id"`
	CurrentState  IntakeState `json:"current_state"`
	CallStatus    Status      `json:"call_status"`
	ConsentToBook bool        `json:"consent_to_book"`
}

// Snapshot returns the current intake/status view of the call.
func (c *Call) Snapshot() Snapshot {
	return Snapshot{
		CallID:        c.ID,
		CurrentState:  c.State,
		CallStatus:    c.Status,
		ConsentToBook: c.ConsentToBook,
	}
}
