package notify

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// EmailSender delivers one message. SendGrid, SES and the stub are interchangeable.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one appointment email. Tags travel to the provider as
// custom args (SendGrid) or message tags (SES) so bounces can be traced back
// to the appointment.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // rendered from Body when empty
	Tags    map[string]string
}

const (
	defaultFromName = "Clinic Ops"
	emailCategory   = "appointments"
)

// htmlBody returns the explicit HTML part or a minimal rendering of the text.
func (m EmailMessage) htmlBody() string {
	if m.HTML != "" {
		return m.HTML
	}
	if m.Body == "" {
		return ""
	}
	lines := strings.Split(html.EscapeString(m.Body), "\n")
	return `<div style="font-family:sans-serif;font-size:14px">` + strings.Join(lines, "<br>") + `</div>`
}

// sortedTags yields tags in key order for deterministic requests.
func (m EmailMessage) sortedTags() [][2]string {
	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, m.Tags[k]})
	}
	return out
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) buildMessage(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject
	m.AddCategories(emailCategory)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	for _, kv := range msg.sortedTags() {
		p.SetCustomArg(kv[0], kv[1])
	}
	m.AddPersonalizations(p)

	if msg.Body != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Body))
	}
	if body := msg.htmlBody(); body != "" {
		m.AddContent(mail.NewContent("text/html", body))
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.buildMessage(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To, "appointment_id", msg.Tags["appointment_id"])
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected message", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "status", response.StatusCode, "appointment_id", msg.Tags["appointment_id"])
	return nil
}

// StubEmailSender logs instead of sending. Used in development and whenever
// the configured provider cannot be built.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject, "appointment_id", msg.Tags["appointment_id"])
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
