// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wneessen/go-mail"

	"github.com/danielhkuo/polly/models"
)

// Message is one plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Data is what email templates can refer to.
type Data struct {
	Name       string
	PollTitle  string
	PublicURL  string
	AdminURL   string
	EditURL    string
	OptionText string
	Expires    string
}

// Expiry renders an optional deadline as "in 3 days (2030-01-01 09:00 UTC)".
func Expiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", humanize.Time(*t), t.UTC().Format("2006-01-02 15:04 MST"))
}

// Render executes a stored template against data.
func Render(tpl *models.EmailTemplate, data Data, to ...string) (Message, error) {
	subject, err := execute(tpl.Key+".subject", tpl.Subject, data)
	if err != nil {
		return Message{}, err
	}
	body, err := execute(tpl.Key+".body", tpl.Body, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: strings.TrimSpace(subject), Body: body}, nil
}

func execute(name, text string, data Data) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SMTP delivers through an SMTP relay.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTP(host string, port int, username, password, from string) *SMTP {
	return &SMTP{host: host, port: port, username: username, password: password, from: from}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}

	c, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// Log writes messages to the log instead of sending them. It is used when
// no SMTP host is configured.
type Log struct{}

func (Log) Send(_ context.Context, msg Message) error {
	slog.Info("email not sent, no SMTP configured", "to", msg.To, "subject", msg.Subject)
	return nil
}
