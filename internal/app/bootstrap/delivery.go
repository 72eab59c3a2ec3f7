package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/notify"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// BuildEmailSender picks the configured email provider. It always returns a
// usable sender; when the preferred provider cannot be built it falls back to
// the stub and reports why.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub", "missing config"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return notify.NewStubEmailSender(logger), "stub", "SENDGRID_API_KEY not set"
		}
		return sender, "sendgrid", ""
	case "ses":
		if awsCfg == nil {
			return notify.NewStubEmailSender(logger), "stub", "aws config unavailable"
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		return sender, "ses", ""
	case "", "stub":
		return notify.NewStubEmailSender(logger), "stub", ""
	default:
		return notify.NewStubEmailSender(logger), "stub", "unknown EMAIL_PROVIDER " + cfg.EmailProvider
	}
}

// BuildEventPublisher returns the SQS fan-out for appointment events, or nil
// when no queue is configured.
func BuildEventPublisher(cfg *appconfig.Config, awsCfg *aws.Config) *events.SQSPublisher {
	if cfg == nil || awsCfg == nil || strings.TrimSpace(cfg.AppointmentEventsQueueURL) == "" {
		return nil
	}
	return events.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), strings.TrimSpace(cfg.AppointmentEventsQueueURL))
}
