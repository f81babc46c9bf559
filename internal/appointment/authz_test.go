package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanAccess(t *testing.T) {
	patient := Actor{UserID: uuid.New(), Role: RolePatient}
	docUser := Actor{UserID: uuid.New(), Role: RoleDoctor}
	doctor := &Doctor{ID: uuid.New(), UserID: docUser.UserID}
	appt := &Appointment{PatientID: patient.UserID, DoctorID: doctor.ID}

	assert.True(t, CanAccess(patient, appt, doctor))
	assert.True(t, CanAccess(docUser, appt, doctor))
	assert.True(t, CanAccess(Actor{UserID: uuid.New(), Role: RoleAdmin}, appt, doctor))
	assert.False(t, CanAccess(Actor{UserID: uuid.New(), Role: RolePatient}, appt, doctor))
	assert.False(t, CanAccess(Actor{UserID: uuid.New(), Role: RoleDoctor}, appt, doctor))
	assert.False(t, CanAccess(docUser, appt, nil))
}

func TestCanManage(t *testing.T) {
	docUser := Actor{UserID: uuid.New(), Role: RoleDoctor}
	doctor := &Doctor{UserID: docUser.UserID}

	assert.True(t, CanManage(docUser, doctor))
	assert.True(t, CanManage(Actor{Role: RoleAdmin}, doctor))
	assert.False(t, CanManage(Actor{UserID: docUser.UserID, Role: RolePatient}, doctor))
	assert.False(t, CanEditSchedule(Actor{UserID: uuid.New(), Role: RoleDoctor}, doctor))
}

func TestCanBook(t *testing.T) {
	id := uuid.New()
	assert.True(t, CanBook(Actor{UserID: id, Role: RolePatient}, id))
	assert.False(t, CanBook(Actor{UserID: uuid.New(), Role: RolePatient}, id))
	assert.True(t, CanBook(Actor{Role: RoleAdmin}, id))
	assert.False(t, CanBook(Actor{UserID: id, Role: RoleDoctor}, id))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
