package config

import (
	"os"
	"strconv"
	"time"
)

// Config is assembled from the environment. Every field has a sane
// development default so `go run ./cmd/web` works out of the box.
type Config struct {
	Addr          string
	DBPath        string
	MigrationsURL string
	LogLevel      string

	// NATSURL enables JetStream event publishing when set. Empty means
	// events are only logged.
	NATSURL string

	MatchDuration time.Duration
}

func Load() Config {
	return Config{
		Addr:          getenv("ADDR", ":8080"),
		DBPath:        getenv("DB_PATH", "tourney.db"),
		MigrationsURL: getenv("MIGRATIONS_URL", "file://migrations"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		NATSURL:       os.Getenv("NATS_URL"),
		MatchDuration: getDuration("MATCH_DURATION_MINUTES", time.Hour),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	minutes, err := strconv.Atoi(v)
	if err != nil || minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
