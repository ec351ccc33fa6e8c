package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haseebbuilds/voice-agent/cmd/mainconfig"
	"github.com/haseebbuilds/voice-agent/internal/api/router"
	"github.com/haseebbuilds/voice-agent/internal/app/bootstrap"
	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calendar"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/internal/compliance"
	appconfig "github.com/haseebbuilds/voice-agent/internal/config"
	"github.com/haseebbuilds/voice-agent/internal/intake"
	"github.com/haseebbuilds/voice-agent/internal/notify"
	"github.com/haseebbuilds/voice-agent/internal/observability/metrics"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting legal intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.drain(shutdownCtx, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// application is the wired HTTP surface plus what must be drained on exit.
type application struct {
	handler    http.Handler
	dispatcher *notify.ConfirmationDispatcher
	closers    []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// drain waits for in-flight confirmation emails, bounded by ctx.
func (a *application) drain(ctx context.Context, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("confirmation emails still in flight at shutdown")
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}
	metricsHandler, intakeMetrics := setupMetrics()

	pool := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}
	stores := bootstrap.BuildStores(cfg, pool, redisClient, logger)
	logger.Info("stores ready", "backend", stores.Backend, "redis", redisClient != nil)

	loc := cfg.Location()
	source, err := calendar.NewBusinessHoursSource(calendar.BusinessHoursConfig{
		Location:        loc,
		StartHour:       cfg.BusinessHourStart,
		EndHour:         cfg.BusinessHourEnd,
		SlotDuration:    time.Duration(cfg.SlotDurationMinutes) * time.Minute,
		IncludeWeekends: cfg.IncludeWeekends,
	}, calendar.NewStaticBusySource())
	if err != nil {
		app.close()
		return nil, fmt.Errorf("calendar: %w", err)
	}
	availability := calendar.NewAvailabilityService(source, stores.Appointments, logger,
		calendar.WithDefaultDaysAhead(cfg.AvailabilityDaysAhead),
		calendar.WithMetrics(intakeMetrics),
	)

	sender, provider, err := bootstrap.BuildEmailSender(ctx, cfg, mainconfig.LoadAWSConfig, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	logger.Info("email provider selected", "provider", provider)

	booker := appointments.NewBooker(stores.Appointments, stores.Locker, intakeMetrics, logger)
	app.dispatcher = notify.NewConfirmationDispatcher(stores.Appointments, sender, logger,
		notify.WithRetry(cfg.EmailMaxAttempts, cfg.EmailRetryBaseDelay, cfg.EmailRetryMaxDelay),
		notify.WithClaimStore(stores.Claims),
		notify.WithLocation(loc),
		notify.WithDispatchMetrics(intakeMetrics),
	)
	audit := compliance.NewRecorder(stores.Audit)
	orchestrator := intake.NewOrchestrator(stores.Calls, availability, booker, app.dispatcher, intake.Config{
		MaxBookingAttempts: cfg.BookingMaxAttempts,
		DaysAhead:          cfg.AvailabilityDaysAhead,
	}, intakeMetrics, logger, intake.WithAuditor(audit))

	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app.handler = router.New(&router.Config{
		Logger:              logger,
		CallsHandler:        calls.NewHandler(stores.Calls, logger),
		IntakeHandler:       intake.NewHandler(orchestrator, logger),
		AvailabilityHandler: calendar.NewHandler(availability, logger),
		AppointmentsHandler: appointments.NewHandler(stores.Appointments, booker, loc, logger),
		ConfirmationHandler: notify.NewHandler(app.dispatcher, logger),
		AuditHandler:        compliance.NewHandler(audit, logger),
		MetricsHandler:      metricsHandler,
		HealthChecks:        checks,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		Context:             ctx,
	})
	return app, nil
}

func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewIntakeMetrics(reg)
}
