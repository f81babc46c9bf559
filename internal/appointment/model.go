package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Actor is the authenticated caller of a command.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	Role      Role
	PushToken *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Name           string
	Specialization string
	IsAvailable    bool
	Schedule       availability.WeeklySchedule
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SlotKey is the uniqueness boundary for an active booking.
type SlotKey struct {
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DoctorID, k.Date.Format(time.DateOnly), k.StartTime)
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	StartTime          string
	EndTime            string
	Status             AppointmentStatus
	ReasonForVisit     string
	Symptoms           *string
	Notes              *string
	Prescription       *string
	CancelledBy        *Role
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Key() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.Date, StartTime: a.StartTime}
}

// StartsAt places the slot start on the wall clock of loc. The hour and
// minute are set directly so DST change days keep the labelled time.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	offset, err := availability.ParseClock(a.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := a.Date.Date()
	hour := int(offset / time.Hour)
	minute := int(offset % time.Hour / time.Minute)
	return time.Date(y, m, d, hour, minute, 0, 0, loc), nil
}

type AppointmentDetail struct {
	Appointment
	Doctor  *Doctor
	Patient *User
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingRequest carries the caller supplied fields of a booking. Date and
// times are validated by the service before any lookup happens.
type BookingRequest struct {
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	Date           string
	StartTime      string
	EndTime        string
	ReasonForVisit string
	Symptoms       string
}

// StatusUpdate is a doctor or admin edit. Empty fields are left untouched.
type StatusUpdate struct {
	Status       AppointmentStatus
	Notes        *string
	Prescription *string
	Reason       string
}

// StatusChange is what the repository writes on a conditional update.
type StatusChange struct {
	To                 AppointmentStatus
	Notes              *string
	Prescription       *string
	CancelledBy        *Role
	CancellationReason *string
}

type ScheduleUpdate struct {
	Schedule    *availability.WeeklySchedule
	IsAvailable *bool
}

type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	Date      *time.Time
	Limit     int
	Offset    int
}

type DoctorStats struct {
	Total    int
	ByStatus map[AppointmentStatus]int
	Upcoming int
	Today    int
}
