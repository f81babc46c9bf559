package reminder

import (
	"context"
	"errors"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gopkg.in/gomail.v2"
)

var ErrNoAddress = errors.New("recipient has no address for this channel")

// Message is a rendered reminder ready for one channel.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Data    map[string]string
}

type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) error
}

type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(host string, port int, user, pass, from string) *EmailSender {
	if from == "" {
		from = user
	}
	return &EmailSender{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

func (s *EmailSender) Channel() Channel { return ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}

// pushPublisher is the part of expo.PushClient the sender uses.
type pushPublisher interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

type PushSender struct {
	client pushPublisher
}

func NewPushSender() *PushSender {
	return &PushSender{client: expo.NewPushClient(nil)}
}

func (s *PushSender) Channel() Channel { return ChannelPush }

func (s *PushSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	token, err := expo.NewExponentPushToken(msg.To)
	if err != nil {
		return fmt.Errorf("invalid push token: %w", err)
	}

	response, err := s.client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{token},
		Title:    msg.Subject,
		Body:     msg.Text,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     msg.Data,
	})
	if err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	if err := response.ValidateResponse(); err != nil {
		return fmt.Errorf("push rejected: %w", err)
	}
	return nil
}
