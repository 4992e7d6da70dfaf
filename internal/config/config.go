package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"raven-chat/internal/models"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	AuthKey     string
	Host        string
	LogFormat   string
	LogLevel    string

	RoomNamespace     uuid.UUID
	AppendMaxAttempts int
	FanoutConcurrency int
	DeliveryTimeout   time.Duration
	SweepSchedule     string
	HistoryLimit      int
}

// Load reads the .env file when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on system environment variables", "component", "config")
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		AuthKey:     getEnv("AUTH_KEY", ""),
		Host:        getEnv("HOST", "localhost"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),

		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 1m"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is missing"))
	}
	if cfg.AuthKey == "" {
		errs = append(errs, errors.New("AUTH_KEY (JWT secret) is missing"))
	}

	var err error
	if cfg.RoomNamespace, err = uuid.Parse(getEnv("ROOM_NAMESPACE", models.DefaultRoomNamespace.String())); err != nil {
		errs = append(errs, fmt.Errorf("ROOM_NAMESPACE: %w", err))
	}
	if cfg.AppendMaxAttempts, err = getInt("APPEND_MAX_ATTEMPTS", 5); err != nil {
		errs = append(errs, err)
	}
	if cfg.FanoutConcurrency, err = getInt("FANOUT_CONCURRENCY", 64); err != nil {
		errs = append(errs, err)
	}
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 50); err != nil {
		errs = append(errs, err)
	}
	if cfg.DeliveryTimeout, err = time.ParseDuration(getEnv("DELIVERY_TIMEOUT", "5s")); err != nil {
		errs = append(errs, fmt.Errorf("DELIVERY_TIMEOUT: %w", err))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	slog.Info("configuration loaded",
		"component", "config",
		"env", cfg.Env,
		"port", cfg.Port,
		"database", maskDBSource(cfg.DatabaseURL),
	)
	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
