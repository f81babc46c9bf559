package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/availability"
	"github.com/hackgods/clinic-booking/internal/config"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
)

const defaultCancellationReason = "Not specified"

var (
	ErrSlotBeingBooked = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)

	ErrReasonRequired          = fmt.Errorf("%w: reason for visit is required", ErrValidation)
	ErrInvalidDate             = fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	ErrInvalidTime             = fmt.Errorf("%w: time must be HH:MM", ErrValidation)
	ErrInvalidEndTime          = fmt.Errorf("%w: end_time must be start_time plus 30 minutes", ErrValidation)
	ErrSlotInPast              = fmt.Errorf("%w: slot has already started", ErrValidation)
	ErrDoctorNotAccepting      = fmt.Errorf("%w: doctor is not accepting appointments", ErrValidation)
	ErrDayClosed               = fmt.Errorf("%w: doctor has no working hours on this date", ErrValidation)
	ErrNotBookableSlot         = fmt.Errorf("%w: start_time is not a bookable slot", ErrValidation)
	ErrInvalidStatus           = fmt.Errorf("%w: unknown status", ErrValidation)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)
	ErrInvalidSchedule         = fmt.Errorf("%w: invalid schedule", ErrValidation)

	ErrForbidden = fmt.Errorf("%w for this appointment", ErrUnauthorized)
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    logger.With().Str("component", "appointment").Logger(),
		now:    time.Now,
	}
}

// ParseDate parses a calendar date. The result is midnight UTC so that the
// weekday does not depend on the server's zone.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// GetAvailability computes the free slots for one doctor and date from the
// current active appointment snapshot.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*Doctor, availability.Availability, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, availability.Availability{}, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, availability.Availability{}, fmt.Errorf("load doctor: %w", err)
	}

	avail, err := s.availabilityFor(ctx, doctor, day)
	if err != nil {
		return nil, availability.Availability{}, err
	}
	return doctor, avail, nil
}

func (s *Service) availabilityFor(ctx context.Context, doctor *Doctor, day time.Time) (availability.Availability, error) {
	active, err := s.repo.ListActiveAppointments(ctx, doctor.ID, day)
	if err != nil {
		return availability.Availability{}, fmt.Errorf("list active appointments: %w", err)
	}

	booked := make([]string, 0, len(active))
	for _, a := range active {
		booked = append(booked, a.StartTime)
	}

	avail, err := availability.Compute(doctor.Schedule, doctor.IsAvailable, booked, day)
	if err != nil {
		return availability.Availability{}, fmt.Errorf("compute availability for doctor %s: %w", doctor.ID, err)
	}
	return avail, nil
}

// BookSlot admits a booking for one slot key. Availability is recomputed
// from storage, and the insert itself is conditional on no active
// appointment holding the key, so of several concurrent callers exactly one
// succeeds and the rest get ErrSlotConflict.
func (s *Service) BookSlot(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	req.ReasonForVisit = strings.TrimSpace(req.ReasonForVisit)
	req.Symptoms = strings.TrimSpace(req.Symptoms)
	if req.ReasonForVisit == "" {
		return nil, ErrReasonRequired
	}

	day, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := availability.ParseClock(req.StartTime); err != nil {
		return nil, ErrInvalidTime
	}
	wantEnd, _ := availability.EndOf(req.StartTime)
	if req.EndTime != wantEnd {
		return nil, ErrInvalidEndTime
	}

	if !CanBook(actor, req.PatientID) {
		return nil, fmt.Errorf("%w to book for patient %s", ErrUnauthorized, req.PatientID)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	patient, err := s.repo.GetUserByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if !doctor.IsAvailable {
		return nil, ErrDoctorNotAccepting
	}

	candidate := Appointment{
		DoctorID:       doctor.ID,
		PatientID:      patient.ID,
		Date:           day,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         StatusPending,
		ReasonForVisit: req.ReasonForVisit,
	}
	if req.Symptoms != "" {
		candidate.Symptoms = &req.Symptoms
	}

	startsAt, _ := candidate.StartsAt(s.cfg.Location)
	if startsAt.Before(s.now()) {
		return nil, ErrSlotInPast
	}

	var created *Appointment

	key := candidate.Key()
	err = s.locker.WithSlotLock(ctx, key.String(), func(lockCtx context.Context) error {
		avail, err := s.availabilityFor(lockCtx, doctor, day)
		if err != nil {
			return err
		}
		if !avail.IsOpen {
			return fmt.Errorf("%w (%s)", ErrDayClosed, avail.Reason)
		}
		if !avail.IsCandidate(req.StartTime) {
			return ErrNotBookableSlot
		}
		if !avail.IsFree(req.StartTime) {
			return ErrSlotConflict
		}

		appt, err := s.repo.InsertAppointmentIfAbsent(lockCtx, candidate)
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, bookingPayload(appt, doctor, patient))
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotConflict) {
			s.log.Info().Str("slot_key", key.String()).Msg("booking lost slot race")
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_key", key.String()).
		Msg("appointment booked")

	return created, nil
}

func bookingPayload(appt *Appointment, doctor *Doctor, patient *User) map[string]any {
	payload := map[string]any{
		"doctor_id":      doctor.ID.String(),
		"doctor_name":    doctor.Name,
		"specialization": doctor.Specialization,
		"patient_id":     patient.ID.String(),
		"patient_name":   patient.Name,
		"date":           appt.Date.Format(time.DateOnly),
		"start_time":     appt.StartTime,
		"end_time":       appt.EndTime,
	}
	if patient.Email != nil {
		payload["patient_email"] = *patient.Email
	}
	if patient.Phone != nil {
		payload["patient_phone"] = *patient.Phone
	}
	return payload
}

// CancelSlot moves an appointment to cancelled. The slot becomes free again
// because availability only counts active statuses.
func (s *Service) CancelSlot(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	appt, doctor, err := s.loadWithDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAccess(actor, appt, doctor) {
		return nil, ErrForbidden
	}
	return s.cancel(ctx, actor, appt, reason)
}

func (s *Service) cancel(ctx context.Context, actor Actor, appt *Appointment, reason string) (*Appointment, error) {
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancellationReason
	}
	role := actor.Role

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusChange{
		To:                 StatusCancelled,
		CancelledBy:        &role,
		CancellationReason: &reason,
	})
	if err != nil {
		return nil, s.conditionalUpdateErr(err, "cancel appointment")
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": string(role),
		"actor_id":     actor.UserID.String(),
		"reason":       reason,
		"slot_key":     updated.Key().String(),
	})

	return updated, nil
}

// UpdateStatus applies a doctor or admin edit: a lifecycle transition and/or
// clinical notes and prescription.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, upd StatusUpdate) (*Appointment, error) {
	if upd.Status != "" && !upd.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, doctor, err := s.loadWithDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanManage(actor, doctor) {
		return nil, ErrForbidden
	}

	if upd.Status == StatusCancelled {
		return s.cancel(ctx, actor, appt, upd.Reason)
	}

	change := StatusChange{
		To:           appt.Status,
		Notes:        upd.Notes,
		Prescription: upd.Prescription,
	}
	event := EventAppointmentUpdated

	if upd.Status != "" && upd.Status != appt.Status {
		if !CanTransition(appt.Status, upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, upd.Status)
		}
		change.To = upd.Status
		switch upd.Status {
		case StatusConfirmed:
			event = EventAppointmentConfirmed
		case StatusCompleted:
			event = EventAppointmentCompleted
		}
	} else if appt.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: appointment is cancelled", ErrInvalidStatusTransition)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, change)
	if err != nil {
		return nil, s.conditionalUpdateErr(err, "update appointment")
	}

	s.logEvent(ctx, updated.ID, event, map[string]any{
		"from":     string(appt.Status),
		"to":       string(updated.Status),
		"actor_id": actor.UserID.String(),
	})

	return updated, nil
}

// conditionalUpdateErr maps a lost conditional write to a transition error:
// the row moved to another status between our read and our write.
func (s *Service) conditionalUpdateErr(err error, op string) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("%w: appointment changed concurrently", ErrInvalidStatusTransition)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) loadWithDoctor(ctx context.Context, id uuid.UUID) (*Appointment, *Doctor, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load appointment: %w", err)
	}
	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	return appt, doctor, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !CanAccess(actor, &detail.Appointment, detail.Doctor) {
		return nil, ErrForbidden
	}
	return detail, nil
}

// ListAppointments scopes the filter by role: patients see their own,
// doctors see their own doctor's, admins see everything.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, filter ListFilter) ([]AppointmentDetail, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20 // default
	}
	if filter.Limit > 100 {
		filter.Limit = 100 // max
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	switch actor.Role {
	case RolePatient:
		id := actor.UserID
		filter.PatientID = &id
	case RoleDoctor:
		doctor, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("load doctor profile: %w", err)
		}
		filter.DoctorID = &doctor.ID
	case RoleAdmin:
	default:
		return nil, ErrUnauthorized
	}

	appointments, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return doctor, nil
}

// UpdateSchedule replaces a doctor's weekly schedule and/or the accepting
// flag. The schedule is validated before it is stored.
func (s *Service) UpdateSchedule(ctx context.Context, actor Actor, doctorID uuid.UUID, upd ScheduleUpdate) (*Doctor, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !CanEditSchedule(actor, doctor) {
		return nil, fmt.Errorf("%w to edit this schedule", ErrUnauthorized)
	}

	schedule := doctor.Schedule
	if upd.Schedule != nil {
		if err := upd.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		schedule = *upd.Schedule
	}
	isAvailable := doctor.IsAvailable
	if upd.IsAvailable != nil {
		isAvailable = *upd.IsAvailable
	}

	updated, err := s.repo.UpdateDoctorSchedule(ctx, doctor.ID, schedule, isAvailable)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	s.log.Info().
		Str("doctor_id", doctor.ID.String()).
		Bool("is_available", updated.IsAvailable).
		Int("days", len(updated.Schedule)).
		Msg("doctor schedule updated")

	return updated, nil
}

// DoctorStats counts a doctor's appointments by status plus the active ones
// for today and the next seven days.
func (s *Service) DoctorStats(ctx context.Context, actor Actor, doctorID uuid.UUID) (*DoctorStats, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !CanManage(actor, doctor) {
		return nil, fmt.Errorf("%w to view these stats", ErrUnauthorized)
	}

	byStatus, err := s.repo.CountByStatus(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	now := s.now().In(s.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todayCount, err := s.repo.CountActiveBetween(ctx, doctor.ID, today, today)
	if err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	upcoming, err := s.repo.CountActiveBetween(ctx, doctor.ID, today, today.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("count upcoming: %w", err)
	}

	stats := &DoctorStats{
		ByStatus: make(map[AppointmentStatus]int, 4),
		Upcoming: upcoming,
		Today:    todayCount,
	}
	for _, st := range []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled} {
		stats.ByStatus[st] = byStatus[st]
		stats.Total += byStatus[st]
	}
	return stats, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
