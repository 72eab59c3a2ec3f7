package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends through Amazon SES v2.
type SESSender struct {
	client           sesAPI
	from             string
	configurationSet string
	logger           *logging.Logger
}

type SESConfig struct {
	FromEmail string
	FromName  string
	// ConfigurationSet routes bounce and complaint events; optional.
	ConfigurationSet string
}

// NewSESSender returns nil without a client.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	from := (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String()
	return &SESSender{
		client:           client,
		from:             from,
		configurationSet: strings.TrimSpace(cfg.ConfigurationSet),
		logger:           logger,
	}
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// sesTagValue keeps only the characters SES accepts in message tags.
func sesTagValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() > 256 {
		return b.String()[:256]
	}
	return b.String()
}

func (s *SESSender) buildInput(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if htmlPart := msg.htmlBody(); htmlPart != "" {
		body.Html = utf8Content(htmlPart)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		EmailTags: []types.MessageTag{{Name: aws.String("category"), Value: aws.String(emailCategory)}},
	}
	for _, kv := range msg.sortedTags() {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String(sesTagValue(kv[0])),
			Value: aws.String(sesTagValue(kv[1])),
		})
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}
	return input
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}

	output, err := s.client.SendEmail(ctx, s.buildInput(msg))
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", msg.To, "appointment_id", msg.Tags["appointment_id"])
		return fmt.Errorf("notify: SES send: %w", err)
	}

	s.logger.Info("email sent via SES", "to", msg.To, "message_id", aws.ToString(output.MessageId), "appointment_id", msg.Tags["appointment_id"])
	return nil
}

var _ EmailSender = (*SESSender)(nil)
