package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	WriteLimitPerMin   int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Appointment events fan-out
	AppointmentEventsQueueURL string
	OutboxPollInterval        time.Duration
	OutboxBatchSize           int
	OutboxMaxAttempts         int
	EventRetention            time.Duration

	// Patient email notifications
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	// Scheduling defaults, overridable per clinic
	ScheduleTimezone       string
	ScheduleOpen           string
	ScheduleClose          string
	ScheduleStepMinutes    int
	ScheduleTrailingSlot   string
	ScheduleClosingCutoff  string
	DefaultDurationMinutes int
	DripsStationCount      int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
		WriteLimitPerMin:   getEnvAsInt("WRITE_LIMIT_PER_MINUTE", 0),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AppointmentEventsQueueURL: getEnv("APPOINTMENT_EVENTS_QUEUE_URL", ""),
		OutboxPollInterval:        getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:           getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts:         getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		EventRetention:            getEnvAsDuration("EVENT_RETENTION", 30*24*time.Hour),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Clinic Ops"),

		ScheduleTimezone:       getEnv("SCHEDULE_TIMEZONE", "America/New_York"),
		ScheduleOpen:           getEnv("SCHEDULE_OPEN", "08:00"),
		ScheduleClose:          getEnv("SCHEDULE_CLOSE", "18:00"),
		ScheduleStepMinutes:    getEnvAsInt("SCHEDULE_STEP_MINUTES", 15),
		ScheduleTrailingSlot:   getEnv("SCHEDULE_TRAILING_SLOT", "18:45"),
		ScheduleClosingCutoff:  getEnv("SCHEDULE_CLOSING_CUTOFF", "19:00"),
		DefaultDurationMinutes: getEnvAsInt("DEFAULT_DURATION_MINUTES", 60),
		DripsStationCount:      getEnvAsInt("DRIPS_STATION_COUNT", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
