package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the goal lifecycle service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	OracleMode    string
	GenerativeURL string
	SchedulerURL  string
	OracleTimeout time.Duration
	OracleRetries int

	MaintainerInterval time.Duration
	MinUpcoming        int
	ScheduleHorizon    time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "waypoint"),
		AllowAnyOrigin:     false,
		OracleMode:         envOrDefault("ORACLE_MODE", "auto"),
		GenerativeURL:      stringsTrimSpace("ORACLE_GENERATIVE_URL"),
		SchedulerURL:       stringsTrimSpace("ORACLE_SCHEDULER_URL"),
		OracleTimeout:      60 * time.Second,
		OracleRetries:      3,
		MaintainerInterval: time.Hour,
		MinUpcoming:        3,
		ScheduleHorizon:    7 * 24 * time.Hour,
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OracleTimeout, err = durationFromEnv("ORACLE_TIMEOUT", cfg.OracleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OracleRetries, err = intFromEnv("ORACLE_MAX_ATTEMPTS", cfg.OracleRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.MaintainerInterval, err = durationFromEnv("MAINTAINER_INTERVAL", cfg.MaintainerInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MinUpcoming, err = intFromEnv("MAINTAINER_MIN_UPCOMING", cfg.MinUpcoming)
	if err != nil {
		return Config{}, err
	}
	cfg.ScheduleHorizon, err = durationFromEnv("MAINTAINER_SCHEDULE_HORIZON", cfg.ScheduleHorizon)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.OracleRetries <= 0 {
		return Config{}, fmt.Errorf("ORACLE_MAX_ATTEMPTS must be positive")
	}
	if cfg.MaintainerInterval < time.Minute {
		return Config{}, fmt.Errorf("MAINTAINER_INTERVAL must be at least 1m")
	}
	if cfg.MinUpcoming <= 0 {
		return Config{}, fmt.Errorf("MAINTAINER_MIN_UPCOMING must be positive")
	}
	if cfg.ScheduleHorizon < time.Hour {
		return Config{}, fmt.Errorf("MAINTAINER_SCHEDULE_HORIZON must be at least 1h")
	}

	return cfg, nil
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
