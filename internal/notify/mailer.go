package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/afterdarksys/servicedesk/internal/config"
	"github.com/afterdarksys/servicedesk/internal/models"
)

// Sender delivers one plain-text mail
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through an SMTP relay
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender creates a sender from the smtp configuration
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send delivers a message. gomail has no context support, so ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// MessageMail builds the subject and body announcing a new message
func MessageMail(t *models.Ticket, m *models.Message, baseURL string) (string, string) {
	subject := fmt.Sprintf("[%s] %s", t.ExternalID, t.Title)

	author := "System"
	if m.Author != nil && m.Author.FullName != "" {
		author = m.Author.FullName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wrote on ticket %s:\n\n", author, t.ExternalID)
	b.WriteString(strings.TrimSpace(m.Body))
	b.WriteString("\n")
	if m.StatusID != nil && *m.StatusID != t.Status.ID {
		fmt.Fprintf(&b, "\nRequested status: %s\n", m.StatusID.Info().Name)
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\n%s/tickets/%s\n", strings.TrimRight(baseURL, "/"), t.ID)
	}
	return subject, b.String()
}
