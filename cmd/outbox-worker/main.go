package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	outboxworker "github.com/wolfman30/clinic-ops-platform/internal/worker/outbox"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := outboxworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("outbox worker failed", "error", err)
		os.Exit(1)
	}
}
