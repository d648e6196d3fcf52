// Package contact delivers the public contact form to the newsroom inbox.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Errors returned by Submit.
var (
	ErrInvalidMessage = errors.New("invalid contact message")
	ErrNotConfigured  = errors.New("mail delivery not configured")
	ErrDelivery       = errors.New("mail delivery failed")
)

const (
	maxFieldLength   = 200
	maxMessageLength = 10000
)

// Message is a contact form submission.
type Message struct {
	Name    string `json:"myname"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// Sender delivers a validated message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service validates submissions and hands them to a Sender.
type Service struct {
	sender Sender
	logger *slog.Logger
}

// NewService returns a Service. A nil sender makes every Submit fail with
// ErrNotConfigured.
func NewService(log *slog.Logger, sender Sender) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{sender: sender, logger: log.With(slog.String("service", "contact"))}
}

// Submit validates msg and sends it.
func (s *Service) Submit(ctx context.Context, msg Message) error {
	msg, err := Normalize(msg)
	if err != nil {
		return err
	}
	if s.sender == nil {
		return ErrNotConfigured
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("send contact mail failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	s.logger.Info("contact mail sent", slog.String("subject", msg.Subject))
	return nil
}

// Normalize trims msg and checks required fields and lengths.
func Normalize(msg Message) (Message, error) {
	msg.Name = singleLine(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Phone = singleLine(msg.Phone)
	msg.Subject = singleLine(msg.Subject)
	msg.Body = strings.TrimSpace(msg.Body)

	switch {
	case msg.Name == "":
		return msg, fmt.Errorf("%w: name is required", ErrInvalidMessage)
	case msg.Email == "":
		return msg, fmt.Errorf("%w: email is required", ErrInvalidMessage)
	case msg.Body == "":
		return msg, fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}
	addr, err := mail.ParseAddress(msg.Email)
	if err != nil || addr.Address != msg.Email {
		return msg, fmt.Errorf("%w: email is not a valid address", ErrInvalidMessage)
	}
	for _, field := range []string{msg.Name, msg.Phone, msg.Subject} {
		if utf8.RuneCountInString(field) > maxFieldLength {
			return msg, fmt.Errorf("%w: field longer than %d characters", ErrInvalidMessage, maxFieldLength)
		}
	}
	if utf8.RuneCountInString(msg.Body) > maxMessageLength {
		return msg, fmt.Errorf("%w: message longer than %d characters", ErrInvalidMessage, maxMessageLength)
	}
	if msg.Subject == "" {
		msg.Subject = "Contact form"
	}
	return msg, nil
}

// Text renders the plain-text mail body.
func Text(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client Name  : %s\n\n", msg.Name)
	fmt.Fprintf(&b, "Client Email : %s\n\n", msg.Email)
	fmt.Fprintf(&b, "Client Phone : %s\n\n", msg.Phone)
	fmt.Fprintf(&b, "Subject      : %s\n\n", msg.Subject)
	fmt.Fprintf(&b, "Message      : %s\n", msg.Body)
	return b.String()
}

// singleLine keeps header-bound fields on one line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
