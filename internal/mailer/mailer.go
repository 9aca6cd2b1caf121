// Package mailer renders transactional emails and delivers them over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
	TemplateNotification  = "notification"
)

const sendTimeout = 10 * time.Second

type Message struct {
	To       string
	Subject  string
	Template string
	Data     any
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

var templates = template.Must(template.New("mail").Parse(`
{{define "verify_email"}}<p>Hello {{.Name}},</p>
<p>Your verification code is <strong>{{.Code}}</strong>. It expires in {{.ValidFor}}.</p>{{end}}
{{define "reset_password"}}<p>Hello {{.Name}},</p>
<p>Use <strong>{{.Code}}</strong> to reset your password. The code expires in {{.ValidFor}}.</p>
<p>If you did not ask for a reset you can ignore this email.</p>{{end}}
{{define "notification"}}<p>{{.Title}}</p><p>{{.Message}}</p>{{end}}
`))

// Render executes the named template.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	client *mail.Client
	from   string
	log    *zap.SugaredLogger
}

func NewSMTPMailer(cfg SMTPConfig, log *zap.SugaredLogger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(sendTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From, log: log}, nil
}

func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	body, err := Render(m.Template, m.Data)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, body)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.log.Warnf("smtp send failed to=%s subject=%q: %v", m.To, m.Subject, err)
		return err
	}
	s.log.Infof("email sent to %s subject=%q", m.To, m.Subject)
	return nil
}

// LogMailer renders messages and writes them to the log. Used when SMTP is
// not configured.
type LogMailer struct {
	Log *zap.SugaredLogger
}

func (l LogMailer) Send(_ context.Context, m Message) error {
	body, err := Render(m.Template, m.Data)
	if err != nil {
		return err
	}
	l.Log.Infow("email (not sent, smtp disabled)", "to", m.To, "subject", m.Subject, "body", body)
	return nil
}
