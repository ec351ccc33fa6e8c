package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

func newTestRouter(t *testing.T) (*chi.Mux, *fixture) {
	t.Helper()
	f := newFixture(t, nil)
	h := NewHandler(f.orch, logging.Discard())
	r := chi.NewRouter()
	r.Post("/api/calls", h.StartCall)
	r.Post("/api/calls/{id}/events", h.PostEvent)
	r.Post("/api/calls/{id}/hangup", h.Hangup)
	return r, f
}

func post(r http.Handler, url, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStartCallAndEvents(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := post(r, "/api/calls", `{"session_ref":"CA-9","practice_area":"personal_injury"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var call calls.Call
	if err := json.NewDecoder(rec.Body).Decode(&call); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if call.ID == "" || call.SessionRef != "CA-9" || call.PracticeArea != calls.PracticeAreaPersonalInjury {
		t.Fatalf("unexpected call %+v", call)
	}

	rec = post(r, "/api/calls/"+call.ID+"/events", `{"type":"greeting_completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Call.State != calls.StateCollectingInfo || res.NextQuestion == nil || res.NextQuestion.Key != "incident_type" {
		t.Fatalf("unexpected result %+v", res)
	}

	rec = post(r, "/api/calls/"+call.ID+"/hangup", `{"outcome":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	r, f := newTestRouter(t)
	call := f.toScheduling(t, "CA-1", false)
	base := "/api/calls/" + call.ID

	cases := []struct {
		name string
		url  string
		body string
		want int
	}{
		{"bad json", "/api/calls", `{`, http.StatusBadRequest},
		{"missing session", "/api/calls", `{"practice_area":"lemon_law"}`, http.StatusBadRequest},
		{"unknown area", "/api/calls", `{"session_ref":"X","practice_area":"tax"}`, http.StatusBadRequest},
		{"duplicate session", "/api/calls", `{"session_ref":"CA-1"}`, http.StatusConflict},
		{"unknown call", "/api/calls/missing/events", `{"type":"call_answered"}`, http.StatusNotFound},
		{"unknown event", base + "/events", `{"type":"dance"}`, http.StatusBadRequest},
		{"out of order", base + "/events", `{"type":"greeting_completed"}`, http.StatusConflict},
		{"caller twice", base + "/events", `{"type":"caller_details","caller":{"name":"A","email":"a@b.co","phone":"5550102000"}}`, http.StatusConflict},
		{"no consent", base + "/events", `{"type":"schedule"}`, http.StatusUnprocessableEntity},
		{"bad outcome", base + "/hangup", `{"outcome":"ringing"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(r, tc.url, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerHangupDefaultsToCompleted(t *testing.T) {
	r, f := newTestRouter(t)
	call := f.toScheduling(t, "CA-1", true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calls/"+call.ID+"/hangup", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ended calls.Call
	if err := json.NewDecoder(rec.Body).Decode(&ended); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ended.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %s", ended.Status)
	}
}
