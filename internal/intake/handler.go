package intake

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler receives call lifecycle events from the telephony collaborator.
type Handler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

// NewHandler creates a new intake handler
func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// StartCallRequest is the body for POST /api/calls.
type StartCallRequest struct {
	SessionRef   string             `json:"session_ref"`
	PracticeArea calls.PracticeArea `json:"practice_area"`
}

// HangupRequest is the body for POST /api/calls/{id}/hangup.
type HangupRequest struct {
	Outcome calls.Status `json:"outcome"`
}

// StartCall handles POST /api/calls
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionRef == "" {
		http.Error(w, "session_ref is required", http.StatusBadRequest)
		return
	}
	if req.PracticeArea != "" && !req.PracticeArea.Valid() {
		http.Error(w, "unknown practice_area", http.StatusBadRequest)
		return
	}

	call, err := h.orchestrator.StartCall(r.Context(), req.SessionRef, req.PracticeArea)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// PostEvent handles POST /api/calls/{id}/events
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.orchestrator.HandleEvent(r.Context(), id, ev)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Hangup handles POST /api/calls/{id}/hangup
func (h *Handler) Hangup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req := HangupRequest{Outcome: calls.StatusCompleted}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	call, err := h.orchestrator.Hangup(r.Context(), id, req.Outcome)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, callID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, calls.ErrCallNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calls.ErrConsentRequired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, calls.ErrInvalidTransition),
		errors.Is(err, calls.ErrAlreadyTerminal),
		errors.Is(err, calls.ErrCallerCaptured),
		errors.Is(err, calls.ErrDuplicateSession),
		errors.Is(err, ErrBookingExhausted),
		errors.Is(err, ErrNoAvailability),
		errors.Is(err, ErrCallEnded):
		status = http.StatusConflict
	case errors.Is(err, calls.ErrInvalidCaller),
		errors.Is(err, calls.ErrUnknownQuestion),
		errors.Is(err, calls.ErrInvalidOutcome),
		errors.Is(err, ErrUnknownEvent):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("intake request failed", "error", err, "call_id", callID)
		http.Error(w, "intake request failed", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
