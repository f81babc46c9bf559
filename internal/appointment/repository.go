package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/availability"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrSlotConflict = errors.New("time slot already booked")
	ErrUnauthorized = errors.New("not authorized")
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	UpdateDoctorSchedule(ctx context.Context, id uuid.UUID, schedule availability.WeeklySchedule, isAvailable bool) (*Doctor, error)

	// Snapshot of pending and confirmed appointments for one doctor and date
	ListActiveAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error)
	CountByStatus(ctx context.Context, doctorID uuid.UUID) (map[AppointmentStatus]int, error)
	CountActiveBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)

	// InsertAppointmentIfAbsent must fail with ErrSlotConflict when an active
	// appointment already holds the same slot key. The check and the insert
	// are one atomic step.
	InsertAppointmentIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error)

	// UpdateAppointmentStatus applies change only while the row is still in
	// status from. ErrAppointmentNotFound means the row is gone or moved on.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
