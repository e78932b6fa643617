// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server runtime settings, read once at startup from the
// environment (a .env file is loaded by the godotenv autoload import in main).
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string

	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string

	// RedisAddr enables the outbound event feed when non-empty.
	RedisAddr string
	RedisDB   int
	FeedQueue string

	// StaleTimeout is how long a room may sit with no connected member (or
	// in finished state) before the sweeper reclaims it.
	StaleTimeout time.Duration
	// SweepInterval is the period of the stale-room sweeper.
	SweepInterval time.Duration

	// PingInterval is how often the server pings each connection;
	// PongWindow is how long a connection may go without answering before
	// it is force-closed.
	PingInterval time.Duration
	PongWindow   time.Duration
}

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	return Config{
		Addr:          addr,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		FeedQueue:     getEnv("FEED_QUEUE_NAME", "parlor_events"),
		StaleTimeout:  getEnvDuration("ROOM_STALE_TIMEOUT", 5*time.Minute),
		SweepInterval: getEnvDuration("ROOM_SWEEP_INTERVAL", time.Minute),
		PingInterval:  getEnvDuration("WS_PING_INTERVAL", 30*time.Second),
		PongWindow:    getEnvDuration("WS_PONG_WINDOW", 60*time.Second),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable with time.ParseDuration,
// else returns a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
