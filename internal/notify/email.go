package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier sends messages over SMTP.
type EmailNotifier struct {
	host       string
	port       int
	username   string
	password   string
	recipients []string
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(host string, port int, username, password string, recipients []string) (*EmailNotifier, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	for _, to := range recipients {
		if !strings.Contains(to, "@") {
			return nil, fmt.Errorf("invalid email address: %s", to)
		}
	}
	return &EmailNotifier{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		recipients: recipients,
	}, nil
}

// Send delivers one message to all recipients.
func (e *EmailNotifier) Send(ctx context.Context, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"To: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n",
		strings.Join(e.recipients, ", "), subject, body,
	))

	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := smtp.SendMail(addr, auth, e.username, e.recipients, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// Name identifies the channel in logs and metrics.
func (e *EmailNotifier) Name() string {
	return "email"
}
