package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/availability"
)

// AppointmentService is what the handlers need from appointment.Service.
type AppointmentService interface {
	GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*appointment.Doctor, availability.Availability, error)
	BookSlot(ctx context.Context, actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	CancelSlot(ctx context.Context, actor appointment.Actor, id uuid.UUID, reason string) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, actor appointment.Actor, id uuid.UUID, upd appointment.StatusUpdate) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, actor appointment.Actor, filter appointment.ListFilter) ([]appointment.AppointmentDetail, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	UpdateSchedule(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID, upd appointment.ScheduleUpdate) (*appointment.Doctor, error)
	DoctorStats(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID) (*appointment.DoctorStats, error)
}

type RouterConfig struct {
	Service     AppointmentService
	Health      *HealthHandler
	Issuer      *auth.Issuer
	Logger      zerolog.Logger
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: cfg.Logger}),
		handlers.PrintRecoveryStack(false),
	))

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	// Public doctor reads
	r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service))
	r.Get("/doctors/{id}/schedule", getScheduleHandler(cfg.Service))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Issuer, handleAuthError))

		r.Put("/doctors/{id}/schedule", updateScheduleHandler(cfg.Service))
		r.Get("/doctors/{id}/stats", doctorStatsHandler(cfg.Service))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
		handlers.AllowCredentials(),
	)
	return cors(r)
}
