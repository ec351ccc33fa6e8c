package calls

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// Question is one practice-area intake question.
type Question struct {
	Key    string `json:"key"`
	Prompt string `json:"question"`
	Kind   string `json:"type"`
}

var lemonLawQuestions = []Question{
	{Key: "vehicle_details", Prompt: "What is the vehicle year, make, and model?", Kind: "text"},
	{Key: "purchase_date", Prompt: "When did you buy or lease it?", Kind: "date"},
	{Key: "registration_state", Prompt: "What state is the vehicle registered in?", Kind: "text"},
	{Key: "vehicle_problems", Prompt: "What problem(s) is the vehicle having?", Kind: "text"},
	{Key: "repair_attempts", Prompt: "How many repair attempts have been made for the same issue?", Kind: "number"},
	{Key: "days_in_shop", Prompt: "How many total days has the vehicle been in the shop?", Kind: "number"},
	{Key: "has_invoices", Prompt: "Do you have the repair invoices or receipts?", Kind: "yes_no"},
}

var personalInjuryQuestions = []Question{
	{Key: "incident_type", Prompt: "What type of incident was it? Options are: car accident, slip and fall, workplace, or other.", Kind: "choice"},
	{Key: "incident_date", Prompt: "When did it happen? Please provide the date.", Kind: "date"},
	{Key: "incident_location", Prompt: "Where did it happen? Please provide the city and state.", Kind: "text"},
	{Key: "injuries", Prompt: "Were you injured? If yes, what injuries did you sustain?", Kind: "text"},
	{Key: "medical_treatment", Prompt: "Did you get medical treatment?", Kind: "yes_no"},
	{Key: "police_report", Prompt: "Was a police report made?", Kind: "yes_no_unsure"},
	{Key: "insurance_involved", Prompt: "Is there insurance involved? Options are: your insurance, other party's insurance, both, or not sure.", Kind: "choice"},
}

// QuestionsFor returns the case questions asked for a practice area.
func QuestionsFor(area PracticeArea) []Question {
	switch area {
	case PracticeAreaLemonLaw:
		return lemonLawQuestions
	case PracticeAreaPersonalInjury:
		return personalInjuryQuestions
	default:
		return nil
	}
}

// NextQuestion returns the first unanswered question for the call.
func NextQuestion(call *Call) (Question, bool) {
	for _, q := range QuestionsFor(call.PracticeArea) {
		if _, answered := call.Answers[q.Key]; !answered {
			return q, true
		}
	}
	return Question{}, false
}

// RecordAnswer stores a case-question answer. Answers are accepted while the
// caller is still being interviewed.
func RecordAnswer(call *Call, key, answer string) error {
	if call.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if call.State != StateCollectingInfo && call.State != StateConsent {
		return &TransitionError{State: call.State, Status: call.Status, Event: "answer", Reason: "answers are only accepted during intake"}
	}
	known := false
	for _, q := range QuestionsFor(call.PracticeArea) {
		if q.Key == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("calls: %q for %s: %w", key, call.PracticeArea, ErrUnknownQuestion)
	}
	if call.Answers == nil {
		call.Answers = make(map[string]string)
	}
	call.Answers[key] = strings.TrimSpace(answer)
	call.UpdatedAt = time.Now().UTC()
	return nil
}

// CaptureCaller attaches validated caller details. Details are immutable once set.
func CaptureCaller(call *Call, caller Caller) error {
	if call.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if call.Caller != nil {
		return ErrCallerCaptured
	}
	normalized, err := ValidateCaller(caller)
	if err != nil {
		return err
	}
	call.Caller = &normalized
	call.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidateCaller trims and checks caller details.
func ValidateCaller(c Caller) (Caller, error) {
	out := Caller{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
	if out.Name == "" {
		return Caller{}, fmt.Errorf("calls: name is required: %w", ErrInvalidCaller)
	}
	addr, err := mail.ParseAddress(out.Email)
	if err != nil || addr.Address != out.Email {
		return Caller{}, fmt.Errorf("calls: email %q: %w", out.Email, ErrInvalidCaller)
	}
	digits := 0
	for _, r := range out.Phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return Caller{}, fmt.Errorf("calls: phone %q: %w", out.Phone, ErrInvalidCaller)
		}
	}
	if digits < 7 || digits > 15 {
		return Caller{}, fmt.Errorf("calls: phone %q: %w", out.Phone, ErrInvalidCaller)
	}
	return out, nil
}
