package contact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/memohai/newsdesk/internal/config"
)

// SMTPSender relays messages through the configured SMTP server. The visitor
// address goes into Reply-To; From is always the configured sender.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(log *slog.Logger, cfg config.SMTPConfig) *SMTPSender {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPSender{cfg: cfg, logger: log.With(slog.String("component", "smtp"))}
}

// Send dials the relay and delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.BuildMsg(msg)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	s.logger.Debug("relaying contact mail", slog.String("host", s.cfg.Host), slog.Int("port", s.cfg.Port))
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// BuildMsg renders msg as a mail message.
func (s *SMTPSender) BuildMsg(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	from := s.cfg.From
	if strings.TrimSpace(from) == "" {
		from = s.cfg.Username
	}
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(s.cfg.To); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	if err := m.ReplyTo(msg.Email); err != nil {
		return nil, fmt.Errorf("smtp reply-to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, Text(msg))
	return m, nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	switch {
	case s.cfg.TLS && s.cfg.Port == 465:
		opts = append(opts, gomail.WithSSL())
	case s.cfg.TLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	return opts
}
