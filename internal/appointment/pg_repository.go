package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/availability"
)

// uniqueViolation is the SQLSTATE Postgres raises on a unique index clash.
const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, name, email, phone, role, push_token, created_at, updated_at`

const doctorColumns = `d.id, d.user_id, u.name, d.specialization, d.is_available, d.availability, d.created_at, d.updated_at`

const appointmentColumns = `a.id, a.doctor_id, a.patient_id, a.appointment_date, a.start_time, a.end_time, a.status,
	a.reason_for_visit, a.symptoms, a.notes, a.prescription, a.cancelled_by, a.cancellation_reason,
	a.created_at, a.updated_at`

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.Role,
		&u.PushToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var schedule []byte

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Specialization,
		&d.IsAvailable,
		&schedule,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &d.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule for doctor %s: %w", d.ID, err)
		}
	}

	return &d, nil
}

func appointmentDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.ReasonForVisit,
		&a.Symptoms,
		&a.Notes,
		&a.Prescription,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	if err := row.Scan(appointmentDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// detailSelect joins an appointment with its doctor and patient.
const detailSelect = `
	SELECT ` + appointmentColumns + `,
	       d.user_id, du.name, d.specialization, d.is_available,
	       p.name, p.email, p.phone, p.role, p.push_token
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id
	JOIN users p ON p.id = a.patient_id
`

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var det AppointmentDetail
	doc := &Doctor{}
	pat := &User{}

	dest := appointmentDest(&det.Appointment)
	dest = append(dest,
		&doc.UserID,
		&doc.Name,
		&doc.Specialization,
		&doc.IsAvailable,
		&pat.Name,
		&pat.Email,
		&pat.Phone,
		&pat.Role,
		&pat.PushToken,
	)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	doc.ID = det.DoctorID
	pat.ID = det.PatientID
	det.Doctor = doc
	det.Patient = pat
	return &det, nil
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.user_id = $1
	`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) UpdateDoctorSchedule(ctx context.Context, id uuid.UUID, schedule availability.WeeklySchedule, isAvailable bool) (*Doctor, error) {
	if schedule == nil {
		schedule = availability.WeeklySchedule{}
	}
	data, err := json.Marshal(schedule)
	if err != nil {
		return nil, fmt.Errorf("encode schedule: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		WITH d AS (
			UPDATE doctors
			SET availability = $2,
			    is_available = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+doctorColumns+`
		FROM d
		JOIN users u ON u.id = d.user_id
	`, id, data, isAvailable)
	return scanDoctor(row)
}

func (r *PgRepository) ListActiveAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1
		  AND a.appointment_date = $2
		  AND a.status IN ('pending', 'confirmed')
		ORDER BY a.start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.PatientID != nil {
		add("a.patient_id = $%d", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		add("a.doctor_id = $%d", *filter.DoctorID)
	}
	if filter.Status != nil {
		add("a.status = $%d", string(*filter.Status))
	}
	if filter.Date != nil {
		add("a.appointment_date = $%d", *filter.Date)
	}

	query := detailSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY a.appointment_date DESC, a.start_time DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListActiveDetailsBetween returns hydrated pending and confirmed
// appointments whose date falls in [from, to], earliest first.
func (r *PgRepository) ListActiveDetailsBetween(ctx context.Context, from, to time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE a.appointment_date BETWEEN $1 AND $2
		  AND a.status IN ('pending', 'confirmed')
		ORDER BY a.appointment_date, a.start_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountByStatus(ctx context.Context, doctorID uuid.UUID) (map[AppointmentStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE doctor_id = $1
		GROUP BY status
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[AppointmentStatus]int)
	for rows.Next() {
		var status AppointmentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *PgRepository) CountActiveBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status IN ('pending', 'confirmed')
	`, doctorID, from, to).Scan(&n)
	return n, err
}

// InsertAppointmentIfAbsent relies on the partial unique index
// appointments_active_slot_key. ON CONFLICT DO NOTHING returns no row when
// an active appointment already holds the key.
func (r *PgRepository) InsertAppointmentIfAbsent(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, doctor_id, patient_id, appointment_date, start_time, end_time,
		                               status, reason_for_visit, symptoms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, now(), now())
		ON CONFLICT (doctor_id, appointment_date, start_time)
		    WHERE status IN ('pending', 'confirmed')
		    DO NOTHING
		RETURNING `+appointmentColumns,
		appt.ID, appt.DoctorID, appt.PatientID, appt.Date, appt.StartTime, appt.EndTime,
		appt.ReasonForVisit, appt.Symptoms)

	created, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) || isUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $3,
		    notes = COALESCE($4, a.notes),
		    prescription = COALESCE($5, a.prescription),
		    cancelled_by = COALESCE($6, a.cancelled_by),
		    cancellation_reason = COALESCE($7, a.cancellation_reason),
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = $2
		RETURNING `+appointmentColumns,
		id, from, change.To, change.Notes, change.Prescription, change.CancelledBy, change.CancellationReason)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
