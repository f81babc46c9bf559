package reminder

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// Source lists the appointments that may need a reminder.
// *appointment.PgRepository satisfies it.
type Source interface {
	ListActiveDetailsBetween(ctx context.Context, from, to time.Time) ([]appointment.AppointmentDetail, error)
}

// Result summarises one sweep.
type Result struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
}

// Sweeper finds active appointments that start within the window and sends
// each patient one 24 hour reminder per channel.
type Sweeper struct {
	source  Source
	store   Store
	senders []Sender
	window  time.Duration
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

func NewSweeper(source Source, store Store, senders []Sender, window time.Duration, loc *time.Location, logger zerolog.Logger) *Sweeper {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		source:  source,
		store:   store,
		senders: senders,
		window:  window,
		loc:     loc,
		log:     logger.With().Str("component", "reminder").Logger(),
		now:     time.Now,
	}
}

// RunOnce performs a single sweep. A failure on one appointment or channel
// is recorded and logged; only listing errors abort the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	now := s.now().In(s.loc)
	until := now.Add(s.window)

	candidates, err := s.source.ListActiveDetailsBetween(ctx, dateOf(now), dateOf(until))
	if err != nil {
		return res, fmt.Errorf("list upcoming appointments: %w", err)
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		det := &candidates[i]
		startsAt, err := det.StartsAt(s.loc)
		if err != nil {
			s.log.Warn().Err(err).Str("appointment_id", det.ID.String()).Msg("skipping appointment with bad start time")
			continue
		}
		if startsAt.Before(now) || startsAt.After(until) {
			continue
		}
		res.Due++

		for _, sender := range s.senders {
			s.deliver(ctx, sender, det, startsAt, &res)
		}
	}

	return res, nil
}

func (s *Sweeper) deliver(ctx context.Context, sender Sender, det *appointment.AppointmentDetail, startsAt time.Time, res *Result) {
	channel := sender.Channel()
	logger := s.log.With().
		Str("appointment_id", det.ID.String()).
		Str("channel", string(channel)).
		Logger()

	address := addressFor(channel, det.Patient)
	if address == "" {
		return
	}

	sent, err := s.store.HasSent(ctx, det.ID, channel, Type24Hours)
	if err != nil {
		logger.Error().Err(err).Msg("dedupe lookup failed")
		res.Failed++
		return
	}
	if sent {
		res.Skipped++
		return
	}

	msg := Compose(det, startsAt)
	msg.To = address

	n := Notification{
		Channel:          channel,
		RecipientID:      det.PatientID,
		AppointmentID:    det.ID,
		ReminderType:     Type24Hours,
		Subject:          msg.Subject,
		Message:          msg.Text,
		RecipientAddress: address,
		Status:           StatusSent,
	}

	if err := sender.Send(ctx, msg); err != nil {
		errText := err.Error()
		n.Status = StatusFailed
		n.Error = &errText
		res.Failed++
		logger.Warn().Err(err).Msg("reminder delivery failed")
	} else {
		sentAt := s.now()
		n.SentAt = &sentAt
		res.Sent++
	}

	if err := s.store.Record(ctx, n); err != nil {
		logger.Error().Err(err).Msg("failed to record notification")
	}
}

func addressFor(channel Channel, patient *appointment.User) string {
	if patient == nil {
		return ""
	}
	switch channel {
	case ChannelEmail:
		if patient.Email != nil {
			return *patient.Email
		}
	case ChannelPush:
		if patient.PushToken != nil {
			return *patient.PushToken
		}
	}
	return ""
}

// Compose renders the reminder text for one appointment.
func Compose(det *appointment.AppointmentDetail, startsAt time.Time) Message {
	doctorName, specialization := "your doctor", ""
	if det.Doctor != nil {
		doctorName = "Dr. " + det.Doctor.Name
		specialization = det.Doctor.Specialization
	}
	patientName := "there"
	if det.Patient != nil && det.Patient.Name != "" {
		patientName = det.Patient.Name
	}

	when := startsAt.Format("Monday, January 2, 2006")
	slot := det.StartTime + " - " + det.EndTime

	text := fmt.Sprintf("Hello %s, this is a reminder of your appointment with %s", patientName, doctorName)
	if specialization != "" {
		text += " (" + specialization + ")"
	}
	text += fmt.Sprintf(" on %s at %s. Please arrive 10 minutes early.", when, slot)

	body := fmt.Sprintf(`<h2>Appointment Reminder</h2>
<p>Hello %s,</p>
<p>This is a reminder of your upcoming appointment.</p>
<ul>
<li><strong>Doctor:</strong> %s</li>
<li><strong>Specialization:</strong> %s</li>
<li><strong>Date:</strong> %s</li>
<li><strong>Time:</strong> %s</li>
</ul>
<p>Please arrive 10 minutes early.</p>`,
		html.EscapeString(patientName),
		html.EscapeString(doctorName),
		html.EscapeString(specialization),
		html.EscapeString(when),
		html.EscapeString(slot),
	)

	return Message{
		Subject: "Appointment Reminder",
		Text:    text,
		HTML:    body,
		Data: map[string]string{
			"appointment_id": det.ID.String(),
			"date":           det.Date.Format(time.DateOnly),
			"start_time":     det.StartTime,
		},
	}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
