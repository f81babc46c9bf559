package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/availability"
)

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
			return
		}

		doctor, avail, err := svc.GetAvailability(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(doctor, avail))
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		actor := mustActor(r)

		// patients may omit patient_id and book for themselves
		patientID := actor.UserID
		if req.PatientID != "" {
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		appt, err := svc.BookSlot(r.Context(), actor, appointment.BookingRequest{
			DoctorID:       doctorID,
			PatientID:      patientID,
			Date:           req.Date,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			ReasonForVisit: req.ReasonForVisit,
			Symptoms:       req.Symptoms,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		// the body is optional on both POST .../cancel and DELETE
		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CancelSlot(r.Context(), mustActor(r), id, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Status == "" && req.Notes == nil && req.Prescription == nil {
			writeError(w, http.StatusBadRequest, "empty_update", "nothing to update")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), mustActor(r), id, appointment.StatusUpdate{
			Status:       appointment.AppointmentStatus(req.Status),
			Notes:        req.Notes,
			Prescription: req.Prescription,
			Reason:       req.Reason,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), mustActor(r), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter appointment.ListFilter

		if v := q.Get("status"); v != "" {
			st := appointment.AppointmentStatus(v)
			filter.Status = &st
		}
		if v := q.Get("date"); v != "" {
			d, err := appointment.ParseDate(v)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			filter.Date = &d
		}
		if v := q.Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			filter.DoctorID = &id
		}
		if v := q.Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = &id
		}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Offset, _ = strconv.Atoi(q.Get("offset"))

		items, err := svc.ListAppointments(r.Context(), mustActor(r), filter)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(items))
		for i := range items {
			resp = append(resp, toDetailResponse(&items[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		doctor, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(doctor))
	}
}

func updateScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctor, err := svc.UpdateSchedule(r.Context(), mustActor(r), id, appointment.ScheduleUpdate{
			Schedule:    req.Availability,
			IsAvailable: req.IsAvailable,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(doctor))
	}
}

func doctorStatsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_doctor_id")
		if !ok {
			return
		}

		stats, err := svc.DoctorStats(r.Context(), mustActor(r), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		byStatus := make(map[string]int, len(stats.ByStatus))
		for st, n := range stats.ByStatus {
			byStatus[string(st)] = n
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Total:    stats.Total,
			ByStatus: byStatus,
			Upcoming: stats.Upcoming,
			Today:    stats.Today,
		})
	}
}

func toScheduleResponse(d *appointment.Doctor) ScheduleResponse {
	schedule := d.Schedule
	if schedule == nil {
		schedule = availability.WeeklySchedule{}
	}
	return ScheduleResponse{DoctorID: d.ID, IsAvailable: d.IsAvailable, Availability: schedule}
}

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// mustActor is only used behind auth.Middleware.
func mustActor(r *http.Request) appointment.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}
