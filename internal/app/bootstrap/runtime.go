// Package bootstrap builds the shared runtime dependencies used by the api and
// outbox-worker binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-ops-platform/internal/http/middleware"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// redisOptions accepts a host:port address or a redis:// / rediss:// URL.
func redisOptions(cfg *appconfig.Config) (*redis.Options, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisTLS && opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return opts, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		logger.Warn("invalid REDIS_ADDR", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// SchedulingDefaults maps the SCHEDULE_* environment onto clinic defaults.
func SchedulingDefaults(cfg *appconfig.Config) clinic.Defaults {
	if cfg == nil {
		return clinic.Defaults{}
	}
	return clinic.Defaults{
		Timezone:               cfg.ScheduleTimezone,
		Open:                   cfg.ScheduleOpen,
		Close:                  cfg.ScheduleClose,
		StepMinutes:            cfg.ScheduleStepMinutes,
		TrailingSlot:           cfg.ScheduleTrailingSlot,
		ClosingCutoff:          cfg.ScheduleClosingCutoff,
		DefaultDurationMinutes: cfg.DefaultDurationMinutes,
		DripsStations:          cfg.DripsStationCount,
	}
}

// BuildClinicStore returns the clinic settings store. Without Redis it serves
// the environment defaults and rejects writes.
func BuildClinicStore(redisClient *redis.Client, cfg *appconfig.Config) *clinic.Store {
	return clinic.NewStore(redisClient, SchedulingDefaults(cfg))
}

// BuildWriteLimiter returns the per-clinic write limiter, or nil when Redis or
// the limit is missing.
func BuildWriteLimiter(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *httpmiddleware.WriteLimiter {
	if redisClient == nil || cfg == nil || cfg.WriteLimitPerMin <= 0 {
		return nil
	}
	return httpmiddleware.NewWriteLimiter(redisClient, cfg.WriteLimitPerMin, time.Minute, logger)
}
