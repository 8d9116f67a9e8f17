package app

import (
	"os"
	"strconv"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/pkg/jwtx"
)

type Config struct {
	Issuer string // Issuer claim for access tokens (default: gatehouse)

	StoreDriver  string // Credential store driver (sqlite, memory) (default: sqlite)
	DatabaseFile string // Path to SQLite database file (default: ./gatehouse.db)
	RedisAddr    string // Optional: Redis address for shared rate-limit counters
	SigningSeed  string // Optional: path to a 32-byte Ed25519 seed file; ephemeral keys otherwise

	AccessTokenTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 720h)

	Throttle service.ThrottleConfig // Login throttling knobs

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	throttle := service.DefaultThrottleConfig()
	throttle.Window = getEnvDurationOrDefault("THROTTLE_WINDOW", throttle.Window)
	throttle.Threshold = getEnvIntOrDefault("THROTTLE_THRESHOLD", throttle.Threshold)
	throttle.BaseDelay = getEnvDurationOrDefault("THROTTLE_BASE_DELAY", throttle.BaseDelay)
	throttle.MaxDelay = getEnvDurationOrDefault("THROTTLE_MAX_DELAY", throttle.MaxDelay)

	return Config{
		Issuer: getEnvOrDefault("GATEHOUSE_ISSUER", "gatehouse"),

		StoreDriver:  getEnvOrDefault("STORE_DRIVER", "sqlite"),
		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "gatehouse.db"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		SigningSeed:  os.Getenv("SIGNING_SEED_FILE"),

		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", service.DefaultRefreshTokenTTL),

		Throttle: throttle,

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept a duration string ("1h", "30m") or bare integer seconds.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
