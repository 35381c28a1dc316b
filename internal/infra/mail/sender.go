package mail

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/gomail.v2"

	"github.com/xavierca1/leadsync/internal/usecase"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

var alertTemplate = template.Must(template.New("alert").Parse(`Severity: {{.Severity}}
Type:     {{.Type}}
{{- if .Overall}}
Watchdog: {{.Overall}}{{end}}
Raised:   {{.RaisedAt.Format "2006-01-02T15:04:05Z07:00"}}
{{- if .ErrorID}}
Error ID: {{.ErrorID}}{{end}}

{{.Message}}
{{range $k, $v := .Context}}
{{$k}}: {{$v}}{{end}}
`))

func NewEmailSender(host string, port int, user, password string, to []string) *EmailSender {
	from := user
	if from == "" {
		from = "leadsync@localhost"
	}
	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		To:       to,
		dialer:   gomail.NewDialer(host, port, user, password),
	}
}

// WithDialer replaces the SMTP dialer.
func (s *EmailSender) WithDialer(d Dialer) *EmailSender {
	s.dialer = d
	return s
}

func (s *EmailSender) SendAlert(ctx context.Context, alert usecase.Alert) error {
	if len(s.To) == 0 {
		return nil
	}
	data := AlertEmailData{
		Severity: string(alert.Severity),
		Type:     alert.Type,
		Message:  alert.Message,
		Overall:  string(alert.Overall),
		RaisedAt: alert.RaisedAt,
		ErrorID:  alert.ErrorID,
		Context:  alert.Context,
	}

	var body bytes.Buffer
	if err := alertTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render alert email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To...)
	m.SetHeader("Subject", fmt.Sprintf("[leadsync %s] %s", strings.ToUpper(data.Severity), alert.Type))
	m.SetBody("text/plain", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
