package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/availability"
)

// fakeService returns canned results and records the last call.
type fakeService struct {
	err error

	gotActor  appointment.Actor
	gotBook   appointment.BookingRequest
	gotReason string
	gotUpdate appointment.StatusUpdate
	gotFilter appointment.ListFilter
	gotSched  appointment.ScheduleUpdate

	doctor *appointment.Doctor
	avail  availability.Availability
	appt   *appointment.Appointment
	detail *appointment.AppointmentDetail
	stats  *appointment.DoctorStats
}

func (f *fakeService) GetAvailability(_ context.Context, _ uuid.UUID, _ string) (*appointment.Doctor, availability.Availability, error) {
	return f.doctor, f.avail, f.err
}

func (f *fakeService) BookSlot(_ context.Context, actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error) {
	f.gotActor, f.gotBook = actor, req
	return f.appt, f.err
}

func (f *fakeService) CancelSlot(_ context.Context, actor appointment.Actor, _ uuid.UUID, reason string) (*appointment.Appointment, error) {
	f.gotActor, f.gotReason = actor, reason
	return f.appt, f.err
}

func (f *fakeService) UpdateStatus(_ context.Context, actor appointment.Actor, _ uuid.UUID, upd appointment.StatusUpdate) (*appointment.Appointment, error) {
	f.gotActor, f.gotUpdate = actor, upd
	return f.appt, f.err
}

func (f *fakeService) GetAppointment(_ context.Context, actor appointment.Actor, _ uuid.UUID) (*appointment.AppointmentDetail, error) {
	f.gotActor = actor
	return f.detail, f.err
}

func (f *fakeService) ListAppointments(_ context.Context, actor appointment.Actor, filter appointment.ListFilter) ([]appointment.AppointmentDetail, error) {
	f.gotActor, f.gotFilter = actor, filter
	if f.err != nil {
		return nil, f.err
	}
	if f.detail == nil {
		return nil, nil
	}
	return []appointment.AppointmentDetail{*f.detail}, nil
}

func (f *fakeService) GetDoctor(_ context.Context, _ uuid.UUID) (*appointment.Doctor, error) {
	return f.doctor, f.err
}

func (f *fakeService) UpdateSchedule(_ context.Context, actor appointment.Actor, _ uuid.UUID, upd appointment.ScheduleUpdate) (*appointment.Doctor, error) {
	f.gotActor, f.gotSched = actor, upd
	return f.doctor, f.err
}

func (f *fakeService) DoctorStats(_ context.Context, actor appointment.Actor, _ uuid.UUID) (*appointment.DoctorStats, error) {
	f.gotActor = actor
	return f.stats, f.err
}

type harness struct {
	svc     *fakeService
	handler http.Handler
	issuer  *auth.Issuer
	patient appointment.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := &fakeService{}
	iss := auth.NewIssuer("test-secret", time.Hour)
	h := NewRouter(RouterConfig{
		Service: svc,
		Health:  NewHealthHandler(nil, nil, "test", "v0"),
		Issuer:  iss,
		Logger:  zerolog.Nop(),
	})
	return &harness{
		svc:     svc,
		handler: h,
		issuer:  iss,
		patient: appointment.Actor{UserID: uuid.New(), Role: appointment.RolePatient},
	}
}

func (h *harness) do(t *testing.T, method, path, body string, actor *appointment.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		tok, err := h.issuer.Issue(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleAppointment() *appointment.Appointment {
	return &appointment.Appointment{
		ID:             uuid.New(),
		DoctorID:       uuid.New(),
		PatientID:      uuid.New(),
		Date:           time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		StartTime:      "09:30",
		EndTime:        "10:00",
		Status:         appointment.StatusPending,
		ReasonForVisit: "checkup",
	}
}

func TestAvailabilityHandler(t *testing.T) {
	h := newHarness(t)
	doc := &appointment.Doctor{ID: uuid.New(), Name: "Dr. House", Specialization: "Diagnostics"}
	h.svc.doctor = doc
	h.svc.avail = availability.Availability{
		Date:           "2025-06-02",
		Day:            "Monday",
		IsOpen:         true,
		StartTime:      "09:00",
		EndTime:        "11:00",
		CandidateSlots: []string{"09:00", "09:30", "10:00", "10:30"},
		BookedSlots:    []string{"09:30"},
		FreeSlots:      []string{"09:00", "10:00", "10:30"},
	}

	rec := h.do(t, http.MethodGet, "/doctors/"+doc.ID.String()+"/availability?date=2025-06-02", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AvailabilityResponse](t, rec)
	assert.True(t, resp.IsOpen)
	assert.Equal(t, 4, resp.TotalSlots)
	assert.Equal(t, 1, resp.BookedCount)
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, resp.FreeSlots)
	require.NotNil(t, resp.WorkingHours)
	assert.Equal(t, "09:00", resp.WorkingHours.Start)
	assert.Equal(t, "Dr. House", resp.DoctorName)

	rec = h.do(t, http.MethodGet, "/doctors/"+doc.ID.String()+"/availability", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/doctors/nope/availability?date=2025-06-02", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.svc.err = appointment.ErrDoctorNotFound
	rec = h.do(t, http.MethodGet, "/doctors/"+doc.ID.String()+"/availability?date=2025-06-02", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAppointmentHandler(t *testing.T) {
	h := newHarness(t)
	h.svc.appt = sampleAppointment()
	doctorID := uuid.New()

	body := fmt.Sprintf(`{"doctor_id":%q,"appointment_date":"2025-06-02","start_time":"09:30","end_time":"10:00","reason_for_visit":"checkup"}`, doctorID)
	rec := h.do(t, http.MethodPost, "/appointments", body, &h.patient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, h.patient, h.svc.gotActor)
	assert.Equal(t, h.patient.UserID, h.svc.gotBook.PatientID, "patient defaults to the caller")
	assert.Equal(t, doctorID, h.svc.gotBook.DoctorID)
	assert.Equal(t, "09:30", h.svc.gotBook.StartTime)

	resp := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "2025-06-02", resp.Date)
}

func TestCreateAppointmentHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
		want string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid_request_body"},
		{"bad doctor id", `{"doctor_id":"x"}`, nil, http.StatusBadRequest, "invalid_doctor_id"},
		{"conflict", "", appointment.ErrSlotConflict, http.StatusBadRequest, "slot_already_booked"},
		{"lock busy", "", appointment.ErrSlotBeingBooked, http.StatusBadRequest, "slot_being_booked"},
		{"validation", "", appointment.ErrNotBookableSlot, http.StatusBadRequest, "validation_failed"},
		{"missing patient", "", appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{"forbidden", "", appointment.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{"storage", "", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.svc.err = tt.err
			body := tt.body
			if body == "" {
				body = fmt.Sprintf(`{"doctor_id":%q,"appointment_date":"2025-06-02","start_time":"09:30","end_time":"10:00","reason_for_visit":"x"}`, uuid.New())
			}

			rec := h.do(t, http.MethodPost, "/appointments", body, &h.patient)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.want, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestCreateAppointmentHandler_Storage500HidesDetails(t *testing.T) {
	h := newHarness(t)
	h.svc.err = errors.New("pq: password authentication failed")

	body := fmt.Sprintf(`{"doctor_id":%q}`, uuid.New())
	rec := h.do(t, http.MethodPost, "/appointments", body, &h.patient)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/appointments", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", decode[ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decode[ErrorResponse](t, rec).Error)
}

func TestCancelAppointmentHandler(t *testing.T) {
	h := newHarness(t)
	appt := sampleAppointment()
	appt.Status = appointment.StatusCancelled
	h.svc.appt = appt

	rec := h.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", `{"reason":"feeling better"}`, &h.patient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "feeling better", h.svc.gotReason)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)

	rec = h.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), "", &h.patient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", h.svc.gotReason)

	h.svc.err = appointment.ErrForbidden
	rec = h.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), "", &h.patient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h.svc.err = fmt.Errorf("load appointment: %w", appointment.ErrAppointmentNotFound)
	rec = h.do(t, http.MethodDelete, "/appointments/"+appt.ID.String(), "", &h.patient)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAppointmentHandler(t *testing.T) {
	h := newHarness(t)
	h.svc.appt = sampleAppointment()
	doc := appointment.Actor{UserID: uuid.New(), Role: appointment.RoleDoctor}
	path := "/appointments/" + h.svc.appt.ID.String()

	rec := h.do(t, http.MethodPatch, path, `{"status":"confirmed","notes":"fasting"}`, &doc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusConfirmed, h.svc.gotUpdate.Status)
	require.NotNil(t, h.svc.gotUpdate.Notes)
	assert.Equal(t, "fasting", *h.svc.gotUpdate.Notes)

	rec = h.do(t, http.MethodPatch, path, `{}`, &doc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.svc.err = appointment.ErrInvalidStatusTransition
	rec = h.do(t, http.MethodPatch, path, `{"status":"completed"}`, &doc)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)
}

func TestListAppointmentsHandler(t *testing.T) {
	h := newHarness(t)
	appt := sampleAppointment()
	h.svc.detail = &appointment.AppointmentDetail{
		Appointment: *appt,
		Doctor:      &appointment.Doctor{ID: appt.DoctorID, Name: "Dr. House"},
	}

	rec := h.do(t, http.MethodGet, "/appointments?status=pending&date=2025-06-02&limit=5", "", &h.patient)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.svc.gotFilter.Status)
	assert.Equal(t, appointment.StatusPending, *h.svc.gotFilter.Status)
	require.NotNil(t, h.svc.gotFilter.Date)
	assert.Equal(t, "2025-06-02", h.svc.gotFilter.Date.Format(time.DateOnly))
	assert.Equal(t, 5, h.svc.gotFilter.Limit)

	items := decode[[]AppointmentResponse](t, rec)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Doctor)
	assert.Equal(t, "Dr. House", items[0].Doctor.Name)

	rec = h.do(t, http.MethodGet, "/appointments?date=June", "", &h.patient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmptyListIsArray(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/appointments", "", &h.patient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestScheduleHandlers(t *testing.T) {
	h := newHarness(t)
	doc := &appointment.Doctor{ID: uuid.New(), IsAvailable: true}
	h.svc.doctor = doc
	admin := appointment.Actor{UserID: uuid.New(), Role: appointment.RoleAdmin}

	rec := h.do(t, http.MethodGet, "/doctors/"+doc.ID.String()+"/schedule", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"doctor_id":%q,"is_available":true,"availability":[]}`, doc.ID), rec.Body.String())

	body := `{"availability":[{"day":"Monday","start_time":"09:00","end_time":"12:00"}],"is_available":false}`
	rec = h.do(t, http.MethodPut, "/doctors/"+doc.ID.String()+"/schedule", body, &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.svc.gotSched.Schedule)
	assert.Equal(t, "12:00", (*h.svc.gotSched.Schedule)[0].EndTime)
	require.NotNil(t, h.svc.gotSched.IsAvailable)
	assert.False(t, *h.svc.gotSched.IsAvailable)

	rec = h.do(t, http.MethodPut, "/doctors/"+doc.ID.String()+"/schedule", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDoctorStatsHandler(t *testing.T) {
	h := newHarness(t)
	h.svc.stats = &appointment.DoctorStats{
		Total:    3,
		ByStatus: map[appointment.AppointmentStatus]int{appointment.StatusPending: 2, appointment.StatusCancelled: 1},
		Upcoming: 2,
	}
	doc := appointment.Actor{UserID: uuid.New(), Role: appointment.RoleDoctor}

	rec := h.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/stats", "", &doc)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatsResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.ByStatus["pending"])
}

func TestRequestIDPropagates(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}
