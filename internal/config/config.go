package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the todo service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string

	AllowAnyOrigin bool
	MaxBodyBytes   int64
	SeedDemo       bool

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", legacyBindAddr()),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "tasktrack"),
		LogLevel:         strings.ToUpper(envOrDefault("APP_LOG_LEVEL", "INFO")),
		AllowAnyOrigin:   false,
		MaxBodyBytes:     1 << 20,
		SeedDemo:         false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:  15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SeedDemo, err = boolFromEnv("APP_SEED_DEMO", cfg.SeedDemo)
	if err != nil {
		return Config{}, err
	}
	maxBody, err := intFromEnv("APP_MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.MaxBodyBytes < 1024 {
		return Config{}, fmt.Errorf("APP_MAX_BODY_BYTES must be at least 1024")
	}
	switch cfg.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return Config{}, fmt.Errorf("invalid APP_LOG_LEVEL: %q (expected DEBUG|INFO|WARN|ERROR)", cfg.LogLevel)
	}
	if _, _, err := net.SplitHostPort(cfg.BindAddr); err != nil {
		return Config{}, fmt.Errorf("APP_BIND_ADDR parse error: %w", err)
	}

	return cfg, nil
}

// legacyBindAddr honours the HOST/PORT pair the original node server read.
func legacyBindAddr() string {
	host := envOrDefault("HOST", "127.0.0.1")
	port := envOrDefault("PORT", "3000")
	return net.JoinHostPort(host, port)
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
