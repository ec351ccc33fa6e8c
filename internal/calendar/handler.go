package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler serves availability to the dashboard.
type Handler struct {
	availability *AvailabilityService
	logger       *logging.Logger
}

// NewHandler creates a new calendar handler
func NewHandler(availability *AvailabilityService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{availability: availability, logger: logger}
}

// AvailabilityResponse is the payload for GET /api/calendar/availability.
type AvailabilityResponse struct {
	AvailableSlots []CalendarSlot `json:"available_slots"`
}

// GetAvailability handles GET /api/calendar/availability?days_ahead=N
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days_ahead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "days_ahead must be an integer", http.StatusBadRequest)
			return
		}
		days = n
		if days == 0 {
			http.Error(w, ErrInvalidLookahead.Error(), http.StatusBadRequest)
			return
		}
	}

	slots, err := h.availability.ListAvailable(r.Context(), days)
	if err != nil {
		if errors.Is(err, ErrInvalidLookahead) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to list availability", "error", err, "days_ahead", days)
		http.Error(w, "failed to list availability", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AvailabilityResponse{AvailableSlots: slots})
}
