// Package outboxworker drains the appointment outbox into email notifications
// and the SQS fan-out queue.
package outboxworker

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-ops-platform/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/clinic-ops-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/notify"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Run starts the outbox deliverer and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("outbox worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("outbox worker requires DATABASE_URL")
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker failed to connect to postgres: %w", err)
	}
	defer dbPool.Close()

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
		logger.Warn("aws config unavailable; ses and sqs disabled", "error", err)
	} else {
		awsCfg = &loaded
	}

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	handler := BuildHandler(cfg, awsCfg, dbPool, redisClient, logger)
	outboxStore := events.NewOutboxStore(dbPool)
	deliverer := events.NewDeliverer(outboxStore, handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts)

	logger.Info("outbox worker started",
		"batch_size", cfg.OutboxBatchSize,
		"interval", cfg.OutboxPollInterval.String(),
		"max_attempts", cfg.OutboxMaxAttempts,
		"handlers", len(handler),
	)
	retention := events.NewRetention(cfg.EventRetention, logger).
		With("outbox", outboxStore).
		With("processed_events", events.NewProcessedStore(dbPool))
	go retention.Start(ctx)

	deliverer.Start(ctx)
	logger.Info("outbox worker stopped")
	return nil
}

// BuildHandler assembles the delivery chain. Notifications run first so a
// failed SQS send is retried without re-sending emails already marked
// processed.
func BuildHandler(cfg *appconfig.Config, awsCfg *aws.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) events.MultiHandler {
	if logger == nil {
		logger = logging.Default()
	}

	sender, provider, reason := appbootstrap.BuildEmailSender(cfg, awsCfg, logger)
	if reason != "" {
		logger.Warn("email provider fallback", "provider", provider, "preference", cfg.EmailProvider, "reason", reason)
	} else {
		logger.Info("email sender initialized", "provider", provider)
	}

	var patientsRepo notify.PatientReader
	if dbPool != nil {
		patientsRepo = patients.NewPostgresRepository(dbPool)
	}
	notifier := notify.NewService(sender, appbootstrap.BuildClinicStore(redisClient, cfg), patientsRepo, logger)
	if dbPool != nil {
		notifier = notifier.WithProcessedTracker(events.NewCachedProcessedStore(redisClient, events.NewProcessedStore(dbPool), cfg.EventRetention))
	}

	handler := events.MultiHandler{notifier}
	if publisher := appbootstrap.BuildEventPublisher(cfg, awsCfg); publisher != nil {
		handler = append(handler, publisher)
	} else {
		logger.Info("appointment events queue not configured; sqs fan-out disabled")
	}
	return handler
}
