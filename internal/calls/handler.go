package calls

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler serves the read-only call endpoints used by the dashboard.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new calls handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ListCallsResponse is the response for listing calls
type ListCallsResponse struct {
	Calls []*Call `json:"calls"`
	Count int     `json:"count"`
}

// ListCalls handles GET /api/calls
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list calls", "error", err)
		http.Error(w, "failed to list calls", http.StatusInternalServerError)
		return
	}
	if calls == nil {
		calls = []*Call{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListCallsResponse{Calls: calls, Count: len(calls)})
}

// GetCall handles GET /api/calls/{id}
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	call, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

// GetCallState handles GET /api/calls/{id}/state
func (h *Handler) GetCallState(w http.ResponseWriter, r *http.Request) {
	call, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call.Snapshot())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Call, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return nil, false
	}
	call, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			http.Error(w, "call not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to load call", "error", err, "call_id", id)
		http.Error(w, "failed to load call", http.StatusInternalServerError)
		return nil, false
	}
	return call, true
}
