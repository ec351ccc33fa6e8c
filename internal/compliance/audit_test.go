package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name    string
		event   AuditEvent
		execErr error
		wantErr bool
	}{
		{
			name: "log consent granted",
			event: AuditEvent{
				EventType: EventConsentGranted,
				CallID:    "call-123",
				Details:   json.RawMessage(`{"intake_state":"consent"}`),
			},
		},
		{
			name: "log appointment booked",
			event: AuditEvent{
				EventType:     EventAppointmentBooked,
				CallID:        "call-456",
				AppointmentID: "appt-1",
			},
		},
		{
			name:    "database failure",
			event:   AuditEvent{EventType: EventCallEnded, CallID: "call-789"},
			execErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := mock.ExpectExec("INSERT INTO compliance_audit_events")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_LogConsentUsesDeclinedType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO compliance_audit_events").
		WithArgs(sqlmock.AnyArg(), EventConsentDeclined, "call-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewRecorder(NewAuditService(db)).LogConsent(context.Background(), "call-1", false, "consent")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_type", "call_id", "appointment_id", "details", "created_at"}).
		AddRow("e2", string(EventAppointmentBooked), "call-1", "appt-1", []byte(`{"scheduled_for":"2024-06-03T10:00:00Z"}`), now).
		AddRow("e1", string(EventConsentGranted), "call-1", nil, []byte(`{"intake_state":"consent"}`), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, event_type, call_id").
		WithArgs("call-1", EventAppointmentBooked).
		WillReturnRows(rows)

	events, err := NewAuditService(db).QueryEvents(context.Background(), AuditFilter{
		CallID:    "call-1",
		EventType: EventAppointmentBooked,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "appt-1", events[0].AppointmentID)
	assert.Equal(t, "", events[1].AppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryAuditLog_FiltersAndOrders(t *testing.T) {
	log := NewMemoryAuditLog()
	rec := NewRecorder(log)
	ctx := context.Background()

	require.NoError(t, rec.LogConsent(ctx, "call-1", true, "consent"))
	require.NoError(t, rec.LogAppointmentBooked(ctx, "call-1", "appt-1", time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, rec.LogConsent(ctx, "call-2", false, "consent"))
	require.NoError(t, rec.LogCallEnded(ctx, "call-1", "completed", "done"))

	events, err := rec.Events(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventCallEnded, events[0].EventType)
	assert.Equal(t, EventConsentGranted, events[2].EventType)

	declined, err := log.QueryEvents(ctx, AuditFilter{EventType: EventConsentDeclined})
	require.NoError(t, err)
	require.Len(t, declined, 1)
	assert.Equal(t, "call-2", declined[0].CallID)

	page, err := log.QueryEvents(ctx, AuditFilter{CallID: "call-1", Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, EventAppointmentBooked, page[0].EventType)
}

func TestHandler_ListCallEvents(t *testing.T) {
	log := NewMemoryAuditLog()
	rec := NewRecorder(log)
	require.NoError(t, rec.LogBookingBlocked(context.Background(), "call-9", "scheduling", "consent required"))

	r := chi.NewRouter()
	r.Get("/api/calls/{id}/audit", NewHandler(rec, logging.Discard()).ListCallEvents)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/calls/call-9/audit", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp CallAuditResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventBookingBlocked, resp.Events[0].EventType)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/calls/unknown/audit", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Empty(t, resp.Events)
}
