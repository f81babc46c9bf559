package appointment

import "github.com/google/uuid"

// Authorization predicates, one per command. Roles are capabilities on the
// actor record; ownership comes from the appointment and doctor rows.

func isAssignedDoctor(actor Actor, doctor *Doctor) bool {
	return actor.Role == RoleDoctor && doctor != nil && doctor.UserID == actor.UserID
}

// CanBook allows patients to book for themselves and admins for anyone.
func CanBook(actor Actor, patientID uuid.UUID) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return actor.UserID == patientID
	}
	return false
}

// CanAccess covers viewing and cancelling: the owning patient, the assigned
// doctor or an admin.
func CanAccess(actor Actor, appt *Appointment, doctor *Doctor) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	if appt.PatientID == actor.UserID {
		return true
	}
	return isAssignedDoctor(actor, doctor)
}

// CanManage covers confirming, completing and clinical notes.
func CanManage(actor Actor, doctor *Doctor) bool {
	return actor.Role == RoleAdmin || isAssignedDoctor(actor, doctor)
}

// CanEditSchedule restricts a weekly schedule to its doctor and admins.
func CanEditSchedule(actor Actor, doctor *Doctor) bool {
	return CanManage(actor, doctor)
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
