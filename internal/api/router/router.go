package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calendar"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/internal/compliance"
	httpmiddleware "github.com/haseebbuilds/voice-agent/internal/http/middleware"
	"github.com/haseebbuilds/voice-agent/internal/intake"
	"github.com/haseebbuilds/voice-agent/internal/notify"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	CallsHandler        *calls.Handler
	IntakeHandler       *intake.Handler
	AvailabilityHandler *calendar.Handler
	AppointmentsHandler *appointments.Handler
	ConfirmationHandler *notify.Handler
	AuditHandler        *compliance.Handler
	MetricsHandler      http.Handler
	HealthChecks        map[string]HealthCheck
	CORSAllowedOrigins  []string
	RateLimitRPS        float64
	RateLimitBurst      int
	// Context bounds background work started by the router. Nil means
	// context.Background.
	Context context.Context
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst))
		api.Use(middleware.AllowContentType("application/json"))

		api.Route("/calls", func(r chi.Router) {
			if cfg.CallsHandler != nil {
				r.Get("/", cfg.CallsHandler.ListCalls)
				r.Get("/{id}", cfg.CallsHandler.GetCall)
				r.Get("/{id}/state", cfg.CallsHandler.GetCallState)
			}
			if cfg.IntakeHandler != nil {
				r.Post("/", cfg.IntakeHandler.StartCall)
				r.Post("/{id}/events", cfg.IntakeHandler.PostEvent)
				r.Post("/{id}/hangup", cfg.IntakeHandler.Hangup)
			}
			if cfg.AuditHandler != nil {
				r.Get("/{id}/audit", cfg.AuditHandler.ListCallEvents)
			}
		})
		if cfg.AvailabilityHandler != nil {
			api.Get("/calendar/availability", cfg.AvailabilityHandler.GetAvailability)
		}
		if cfg.AppointmentsHandler != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Get("/", cfg.AppointmentsHandler.ListAppointments)
				r.Get("/{id}", cfg.AppointmentsHandler.GetAppointment)
				r.Post("/{id}/cancel", cfg.AppointmentsHandler.CancelAppointment)
			})
		}
		if cfg.ConfirmationHandler != nil {
			api.Post("/email/send-confirmation", cfg.ConfirmationHandler.SendConfirmation)
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports ok when every check passes, 503 otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
