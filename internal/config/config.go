package config

import (
	"errors"
	"fmt"
	"os"
)

// Config holds all configuration for the hub process.
type Config struct {
	// Environment
	Env  string
	Port string

	// Database
	DatabaseURL string

	// Redis (asynq broker + shared KV mirror)
	RedisURL string

	// CORS (dashboard WebSocket origin allowlist is enforced at the fiber layer)
	CORSOrigins string

	// Encryption for ThirdPartyConfig.AuthToken at rest
	EncryptionKey string

	// Sentry
	SentryDSN string

	// Terminal protocol tuning, spec.md §6
	HeartbeatIntervalSeconds  int
	ConnectionTimeoutSeconds  int
	RequireWhitelist          bool
	MaxLogBatchSize           int
	SendToDeviceTimeoutSeconds int

	// Session-window threshold used to default inout to 0 when the
	// previous punch is "old" (spec.md §9 Open Questions).
	SessionWindowHours int

	// Attendance Sync Engine tuning, SPEC_FULL.md §4.6
	AttendanceBatchSize      int
	AttendanceDrainIntervalS int
	AttendanceRetryIntervalS int
	DeadLetterRetentionDays  int

	// User Sync Engine tuning, SPEC_FULL.md §4.7
	UserPullIntervalS int
	UserPushIntervalS int

	// Worker pool size for the asynq server
	WorkerConcurrency int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnv("WEBSOCKET_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),

		HeartbeatIntervalSeconds:   getEnvInt("HEARTBEAT_INTERVAL", 60),
		ConnectionTimeoutSeconds:   getEnvInt("CONNECTION_TIMEOUT", 180),
		RequireWhitelist:           getEnvBool("REQUIRE_WHITELIST", false),
		MaxLogBatchSize:            getEnvInt("MAX_LOG_BATCH_SIZE", 40),
		SendToDeviceTimeoutSeconds: getEnvInt("SEND_TO_DEVICE_TIMEOUT", 10),

		SessionWindowHours: getEnvInt("SESSION_WINDOW_HOURS", 18),

		AttendanceBatchSize:      getEnvInt("ATTENDANCE_BATCH_SIZE", 100),
		AttendanceDrainIntervalS: getEnvInt("ATTENDANCE_DRAIN_INTERVAL", 30),
		AttendanceRetryIntervalS: getEnvInt("ATTENDANCE_RETRY_INTERVAL", 300),
		DeadLetterRetentionDays:  getEnvInt("DEAD_LETTER_RETENTION_DAYS", 30),

		UserPullIntervalS: getEnvInt("USER_PULL_INTERVAL", 900),
		UserPushIntervalS: getEnvInt("USER_PUSH_INTERVAL", 60),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
