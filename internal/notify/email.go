package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/wneessen/go-mail"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier sends notifications as plain text e-mail over SMTP
type EmailNotifier struct {
	client mailSender
}

// NewEmailNotifier creates an EmailNotifier for the given SMTP settings
func NewEmailNotifier(cfg config.MailConfig) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail host is not configured")
	}

	opts := []mail.Option{
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	switch cfg.TLS {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating mail client: %w", err)
	}
	return &EmailNotifier{client: client}, nil
}

// Send delivers n to its recipients
func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	msg, err := buildMessage(n)
	if err != nil {
		return err
	}
	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

func buildMessage(n Notification) (*mail.Msg, error) {
	if n.From.Email == "" {
		return nil, errors.New("sender address is required")
	}
	if len(n.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}

	m := mail.NewMsg()
	if err := m.FromFormat(n.From.Name, n.From.Email); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(n.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(n.Cc) > 0 {
		if err := m.Cc(n.Cc...); err != nil {
			return nil, fmt.Errorf("invalid copy recipient: %w", err)
		}
	}
	if len(n.Bcc) > 0 {
		if err := m.Bcc(n.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid blind copy recipient: %w", err)
		}
	}
	m.Subject(n.Title)
	m.SetBodyString(mail.TypeTextPlain, n.Message)
	return m, nil
}
