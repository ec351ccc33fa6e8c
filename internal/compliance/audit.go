// Package compliance keeps the immutable audit trail for consent and booking decisions.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventConsentGranted is logged when the caller agrees to be booked.
	EventConsentGranted AuditEventType = "intake.consent_granted"
	// EventConsentDeclined is logged when the caller declines booking.
	EventConsentDeclined AuditEventType = "intake.consent_declined"
	// EventBookingBlocked is logged when a booking was refused for lack of consent.
	EventBookingBlocked AuditEventType = "intake.booking_blocked"
	// EventAppointmentBooked is logged when an appointment is committed for a call.
	EventAppointmentBooked AuditEventType = "intake.appointment_booked"
	// EventCallEnded is logged when a call reaches a terminal status.
	EventCallEnded AuditEventType = "intake.call_ended"
)

// AuditEvent represents an immutable compliance audit record.
type AuditEvent struct {
	ID            string          `json:"id"`
	EventType     AuditEventType  `json:"event_type"`
	CallID        string          `json:"call_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For consent and blocked bookings
	IntakeState string `json:"intake_state,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// For booked appointments
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	// For ended calls
	Outcome string `json:"outcome,omitempty"`
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	CallID    string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// AuditLog persists audit events.
type AuditLog interface {
	LogEvent(ctx context.Context, event AuditEvent) error
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// Recorder offers typed helpers over any AuditLog.
type Recorder struct {
	log AuditLog
}

// NewRecorder wraps an audit log.
func NewRecorder(log AuditLog) *Recorder {
	return &Recorder{log: log}
}

// LogConsent records the caller's answer to the booking consent question.
func (r *Recorder) LogConsent(ctx context.Context, callID string, granted bool, state string) error {
	eventType := EventConsentDeclined
	if granted {
		eventType = EventConsentGranted
	}
	return r.log.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		CallID:    callID,
		Details:   marshalDetails(AuditDetails{IntakeState: state}),
	})
}

// LogBookingBlocked records a booking refused by the consent gate.
func (r *Recorder) LogBookingBlocked(ctx context.Context, callID, state, reason string) error {
	return r.log.LogEvent(ctx, AuditEvent{
		EventType: EventBookingBlocked,
		CallID:    callID,
		Details:   marshalDetails(AuditDetails{IntakeState: state, Reason: reason}),
	})
}

// LogAppointmentBooked records the appointment committed for a call.
func (r *Recorder) LogAppointmentBooked(ctx context.Context, callID, appointmentID string, scheduledFor time.Time) error {
	at := scheduledFor.UTC()
	return r.log.LogEvent(ctx, AuditEvent{
		EventType:     EventAppointmentBooked,
		CallID:        callID,
		AppointmentID: appointmentID,
		Details:       marshalDetails(AuditDetails{ScheduledFor: &at}),
	})
}

// LogCallEnded records the terminal outcome of a call.
func (r *Recorder) LogCallEnded(ctx context.Context, callID, outcome, state string) error {
	return r.log.LogEvent(ctx, AuditEvent{
		EventType: EventCallEnded,
		CallID:    callID,
		Details:   marshalDetails(AuditDetails{Outcome: outcome, IntakeState: state}),
	})
}

// Events lists the audit trail of one call, newest first.
func (r *Recorder) Events(ctx context.Context, callID string) ([]AuditEvent, error) {
	return r.log.QueryEvents(ctx, AuditFilter{CallID: callID})
}

func marshalDetails(d AuditDetails) json.RawMessage {
	b, _ := json.Marshal(d)
	return b
}

func prepare(event *AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

// AuditService stores audit events in Postgres.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	prepare(&event)

	query := `
		INSERT INTO compliance_audit_events (
			id, event_type, call_id, appointment_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.CallID,
		nullString(event.AppointmentID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, call_id, appointment_id, details, created_at
		FROM compliance_audit_events
		WHERE 1 = 1
	`
	var args []interface{}
	argIdx := 1

	if filter.CallID != "" {
		query += fmt.Sprintf(" AND call_id = $%d", argIdx)
		args = append(args, filter.CallID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var apptID sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.CallID, &apptID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.AppointmentID = apptID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// MemoryAuditLog keeps audit events in process for single-instance runs and tests.
type MemoryAuditLog struct {
	mu     sync.RWMutex
	events []AuditEvent
}

// NewMemoryAuditLog returns an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (m *MemoryAuditLog) LogEvent(ctx context.Context, event AuditEvent) error {
	prepare(&event)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryAuditLog) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	m.mu.RLock()
	out := []AuditEvent{}
	for _, e := range m.events {
		if filter.CallID != "" && e.CallID != filter.CallID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
	}
	m.mu.RUnlock()

	// events are appended in time order, so reversing keeps ties stable
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []AuditEvent{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}
