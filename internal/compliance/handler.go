package compliance

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler exposes the audit trail of a call.
type Handler struct {
	recorder *Recorder
	logger   *logging.Logger
}

// NewHandler creates a new audit handler
func NewHandler(recorder *Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{recorder: recorder, logger: logger}
}

// CallAuditResponse is the body of GET /api/calls/{id}/audit.
type CallAuditResponse struct {
	CallID string       `json:"call_id"`
	Events []AuditEvent `json:"events"`
}

// ListCallEvents handles GET /api/calls/{id}/audit
func (h *Handler) ListCallEvents(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "id")
	events, err := h.recorder.Events(r.Context(), callID)
	if err != nil {
		h.logger.Error("failed to load audit trail", "error", err, "call_id", callID)
		http.Error(w, "failed to load audit trail", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CallAuditResponse{CallID: callID, Events: events})
}
