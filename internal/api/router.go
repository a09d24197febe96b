package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}

	r.Get("/providers", listProvidersHandler(cfg.Service))
	r.Get("/providers/{id}/availability", listWindowsHandler(cfg.Service))
	r.Post("/providers/{id}/availability", createWindowHandler(cfg.Service))
	r.Get("/providers/{id}/holidays", listHolidaysHandler(cfg.Service))
	r.Post("/providers/{id}/holidays", createHolidayHandler(cfg.Service))
	r.Get("/providers/{id}/schedule", scheduleHandler(cfg.Service))

	r.Put("/availability/{id}", updateWindowHandler(cfg.Service))
	r.Delete("/availability/{id}", deleteWindowHandler(cfg.Service))
	r.Put("/holidays/{id}", updateHolidayHandler(cfg.Service))
	r.Delete("/holidays/{id}", deleteHolidayHandler(cfg.Service))

	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}", rescheduleAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}/status", updateAppointmentStatusHandler(cfg.Service))

	r.Post("/visits", createVisitHandler(cfg.Service))
	r.Get("/visits", listVisitsHandler(cfg.Service))
	r.Get("/visits/{id}", getVisitHandler(cfg.Service))

	r.Get("/reports/appointments.csv", appointmentsReportHandler(cfg.Service))
	r.Get("/reports/visits.csv", visitsReportHandler(cfg.Service))

	return r
}
