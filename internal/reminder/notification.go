package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

const Type24Hours = "24hours"

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification is one delivery attempt on one channel.
type Notification struct {
	ID               uuid.UUID
	Channel          Channel
	RecipientID      uuid.UUID
	AppointmentID    uuid.UUID
	ReminderType     string
	Subject          string
	Message          string
	RecipientAddress string
	Status           Status
	SentAt           *time.Time
	Error            *string
}

// Store persists delivery attempts and answers the dedupe question.
type Store interface {
	HasSent(ctx context.Context, appointmentID uuid.UUID, channel Channel, reminderType string) (bool, error)
	Record(ctx context.Context, n Notification) error
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) HasSent(ctx context.Context, appointmentID uuid.UUID, channel Channel, reminderType string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE appointment_id = $1 AND channel = $2 AND reminder_type = $3 AND status = 'sent'
		)`, appointmentID, string(channel), reminderType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return exists, nil
}

func (s *PgStore) Record(ctx context.Context, n Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, channel, recipient_id, appointment_id, reminder_type,
			subject, message, recipient_address, status, sent_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, string(n.Channel), n.RecipientID, n.AppointmentID, n.ReminderType,
		n.Subject, n.Message, n.RecipientAddress, string(n.Status), n.SentAt, n.Error,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
