package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler serves the appointment endpoints.
type Handler struct {
	repo   Repository
	booker *Booker
	loc    *time.Location
	logger *logging.Logger
}

// NewHandler creates a new appointments handler. Times are rendered in loc.
func NewHandler(repo Repository, booker *Booker, loc *time.Location, logger *logging.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, booker: booker, loc: loc, logger: logger}
}

// ListAppointmentsResponse is the response for listing appointments
type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
	Count        int           `json:"count"`
}

// ListAppointments handles GET /api/appointments
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.In(h.loc))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListAppointmentsResponse{Appointments: out, Count: len(out)})
}

// GetAppointment handles GET /api/appointments/{id}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt.In(h.loc))
}

// CancelAppointment handles POST /api/appointments/{id}/cancel
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.booker.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt.In(h.loc))
}

func (h *Handler) writeError(w http.ResponseWriter, err error, id string) {
	if errors.Is(err, ErrAppointmentNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	h.logger.Error("appointment request failed", "error", err, "appointment_id", id)
	http.Error(w, "appointment request failed", http.StatusInternalServerError)
}
