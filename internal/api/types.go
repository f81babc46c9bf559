package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/availability"
)

type CreateAppointmentRequest struct {
	DoctorID       string `json:"doctor_id"`
	PatientID      string `json:"patient_id"`
	Date           string `json:"appointment_date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	ReasonForVisit string `json:"reason_for_visit"`
	Symptoms       string `json:"symptoms,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type UpdateAppointmentRequest struct {
	Status       string  `json:"status,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Prescription *string `json:"prescription,omitempty"`
	Reason       string  `json:"cancellation_reason,omitempty"`
}

type UpdateScheduleRequest struct {
	Availability *availability.WeeklySchedule `json:"availability,omitempty"`
	IsAvailable  *bool                        `json:"is_available,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID         `json:"id"`
	DoctorID           uuid.UUID         `json:"doctor_id"`
	PatientID          uuid.UUID         `json:"patient_id"`
	Date               string            `json:"appointment_date"`
	StartTime          string            `json:"start_time"`
	EndTime            string            `json:"end_time"`
	Status             string            `json:"status"`
	ReasonForVisit     string            `json:"reason_for_visit"`
	Symptoms           *string           `json:"symptoms,omitempty"`
	Notes              *string           `json:"notes,omitempty"`
	Prescription       *string           `json:"prescription,omitempty"`
	CancelledBy        *appointment.Role `json:"cancelled_by,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`

	Doctor  *DoctorSummary  `json:"doctor,omitempty"`
	Patient *PatientSummary `json:"patient,omitempty"`
}

type DoctorSummary struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
}

type PatientSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
	Phone *string   `json:"phone,omitempty"`
}

type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID       uuid.UUID     `json:"doctor_id"`
	DoctorName     string        `json:"doctor_name"`
	Specialization string        `json:"specialization"`
	Date           string        `json:"date"`
	Day            string        `json:"day"`
	IsOpen         bool          `json:"is_open"`
	Reason         string        `json:"reason,omitempty"`
	WorkingHours   *WorkingHours `json:"working_hours,omitempty"`
	TotalSlots     int           `json:"total_slots"`
	BookedCount    int           `json:"booked_count"`
	FreeSlots      []string      `json:"free_slots"`
}

type ScheduleResponse struct {
	DoctorID     uuid.UUID                   `json:"doctor_id"`
	IsAvailable  bool                        `json:"is_available"`
	Availability availability.WeeklySchedule `json:"availability"`
}

type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Upcoming int            `json:"upcoming"`
	Today    int            `json:"today"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               a.Date.Format(time.DateOnly),
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		ReasonForVisit:     a.ReasonForVisit,
		Symptoms:           a.Symptoms,
		Notes:              a.Notes,
		Prescription:       a.Prescription,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	if d.Doctor != nil {
		resp.Doctor = &DoctorSummary{ID: d.Doctor.ID, Name: d.Doctor.Name, Specialization: d.Doctor.Specialization}
	}
	if d.Patient != nil {
		resp.Patient = &PatientSummary{ID: d.Patient.ID, Name: d.Patient.Name, Email: d.Patient.Email, Phone: d.Patient.Phone}
	}
	return resp
}

func toAvailabilityResponse(doc *appointment.Doctor, a availability.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{
		DoctorID:       doc.ID,
		DoctorName:     doc.Name,
		Specialization: doc.Specialization,
		Date:           a.Date,
		Day:            a.Day,
		IsOpen:         a.IsOpen,
		Reason:         a.Reason,
		TotalSlots:     len(a.CandidateSlots),
		BookedCount:    len(a.BookedSlots),
		FreeSlots:      a.FreeSlots,
	}
	if a.IsOpen {
		resp.WorkingHours = &WorkingHours{Start: a.StartTime, End: a.EndTime}
	}
	return resp
}
