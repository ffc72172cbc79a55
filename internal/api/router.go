package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agendasaude/clinic-scheduling/internal/appointment"
	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

type RouterConfig struct {
	Service      *appointment.Service
	WaitlistRepo waitlist.Repository
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware)

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Appointments
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/conflicts", auditConflictsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}/slot", rescheduleAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Confirm(req.Context(), id)
	}))
	r.Post("/appointments/{id}/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Start(req.Context(), id)
	}))
	r.Post("/appointments/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Complete(req.Context(), id)
	}))
	r.Post("/appointments/{id}/cancel", freeSlotHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, waitlist.Result, error) {
		return cfg.Service.Cancel(req.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", freeSlotHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, waitlist.Result, error) {
		return cfg.Service.MarkNoShow(req.Context(), id)
	}))

	// Waiting list
	r.Post("/waitlist", joinWaitlistHandler(cfg.WaitlistRepo))
	r.Get("/waitlist", listWaitlistHandler(cfg.WaitlistRepo))

	return r
}
