package notify

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Handler exposes the manual confirmation trigger.
type Handler struct {
	dispatcher *ConfirmationDispatcher
	logger     *logging.Logger
}

// NewHandler creates a new notify handler
func NewHandler(dispatcher *ConfirmationDispatcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// SendConfirmationResponse reports the send status of an appointment.
type SendConfirmationResponse struct {
	AppointmentID         string `json:"appointment_id"`
	Status                string `json:"status"`
	ConfirmationEmailSent bool   `json:"confirmation_email_sent"`
	Message               string `json:"message,omitempty"`
}

// SendConfirmation handles POST /api/email/send-confirmation?appointment_id=ID
func (h *Handler) SendConfirmation(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("appointment_id")
	if id == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}

	appt, err := h.dispatcher.SendConfirmation(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SendConfirmationResponse{
			AppointmentID:         appt.ID,
			Status:                "sent",
			ConfirmationEmailSent: appt.ConfirmationEmailSent,
			Message:               "Confirmation email sent",
		})
	case errors.Is(err, ErrAlreadySent):
		writeJSON(w, http.StatusConflict, SendConfirmationResponse{
			AppointmentID:         id,
			Status:                "already_sent",
			ConfirmationEmailSent: true,
			Message:               err.Error(),
		})
	case errors.Is(err, ErrDeliveryFailed):
		writeJSON(w, http.StatusBadGateway, SendConfirmationResponse{
			AppointmentID: id,
			Status:        "delivery_failed",
			Message:       "email provider did not accept the message; retry later",
		})
	case errors.Is(err, ErrNotConfirmable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, appointments.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("failed to send confirmation", "error", err, "appointment_id", id)
		http.Error(w, "failed to send confirmation", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
