package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/availability"
)

// memRepo is an in-memory Repository. The mutex plays the role of the
// unique index: check and insert happen under one lock.
type memRepo struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*User
	doctors      map[uuid.UUID]*Doctor
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	// hook runs inside ListActiveAppointments, used to widen race windows
	listHook func()
	failOn   map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        make(map[uuid.UUID]*User),
		doctors:      make(map[uuid.UUID]*Doctor),
		appointments: make(map[uuid.UUID]*Appointment),
		failOn:       make(map[string]error),
	}
}

func (m *memRepo) addUser(name string, role Role) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := name + "@example.com"
	u := &User{ID: uuid.New(), Name: name, Email: &email, Role: role, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[u.ID] = u
	return u
}

func (m *memRepo) addDoctor(user *User, schedule availability.WeeklySchedule) *Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &Doctor{
		ID:             uuid.New(),
		UserID:         user.ID,
		Name:           user.Name,
		Specialization: "Cardiology",
		IsAvailable:    true,
		Schedule:       schedule,
	}
	m.doctors[d.ID] = d
	return d
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepo) activeFor(key SlotKey) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status.Active() && a.Key().String() == key.String() {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (m *memRepo) UpdateDoctorSchedule(_ context.Context, id uuid.UUID, schedule availability.WeeklySchedule, isAvailable bool) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.Schedule = schedule
	d.IsAvailable = isAvailable
	d.UpdatedAt = time.Now()
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListActiveAppointments(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	if err := m.failOn["ListActiveAppointments"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Status.Active() {
			out = append(out, *a)
		}
	}
	hook := m.listHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d, _ := m.GetDoctorByID(ctx, a.DoctorID)
	p, _ := m.GetUserByID(ctx, a.PatientID)
	return &AppointmentDetail{Appointment: *a, Doctor: d, Patient: p}, nil
}

func (m *memRepo) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	m.mu.Lock()
	var ids []uuid.UUID
	for _, a := range m.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Date != nil && !a.Date.Equal(*f.Date) {
			continue
		}
		ids = append(ids, a.ID)
	}
	m.mu.Unlock()

	var out []AppointmentDetail
	for _, id := range ids {
		d, err := m.GetAppointmentDetail(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) CountByStatus(_ context.Context, doctorID uuid.UUID) (map[AppointmentStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[AppointmentStatus]int)
	for _, a := range m.appointments {
		if a.DoctorID == doctorID {
			out[a.Status]++
		}
	}
	return out, nil
}

func (m *memRepo) CountActiveBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.Active() && !a.Date.Before(from) && !a.Date.After(to) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) InsertAppointmentIfAbsent(_ context.Context, appt Appointment) (*Appointment, error) {
	if err := m.failOn["InsertAppointmentIfAbsent"]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.Status.Active() && a.Key().String() == appt.Key().String() {
			return nil, ErrSlotConflict
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Status = StatusPending
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	m.appointments[appt.ID] = &appt
	cp := appt
	return &cp, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = change.To
	if change.Notes != nil {
		a.Notes = change.Notes
	}
	if change.Prescription != nil {
		a.Prescription = change.Prescription
	}
	if change.CancelledBy != nil {
		a.CancelledBy = change.CancelledBy
	}
	if change.CancellationReason != nil {
		a.CancellationReason = change.CancellationReason
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	if err := m.failOn["InsertEvent"]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// passLocker runs fn directly so that storage alone decides races.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// busyLocker simulates another instance holding the slot lock.
type busyLocker struct {
	err error
}

func (b busyLocker) WithSlotLock(context.Context, string, func(ctx context.Context) error) error {
	return b.err
}

var errBoom = errors.New("boom")
