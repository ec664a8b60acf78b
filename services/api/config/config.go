package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/humanimpact/hii-stats/internal/logger"
)

// Config holds environment-driven settings for the read API.
type Config struct {
	DatabaseURL  string
	Dataset      string
	Port         int
	BearerToken  string
	DefaultLimit int
	MaxLimit     int
	Log          logger.Config
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Dataset:      "hii-stats",
		Port:         8080,
		DefaultLimit: 100,
		MaxLimit:     1000,
		Log:          logger.Config{Level: "info", Format: "json"},
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if dataset := os.Getenv("STATS_DATASET"); dataset != "" {
		cfg.Dataset = dataset
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if limitStr := os.Getenv("API_DEFAULT_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			cfg.DefaultLimit = limit
		} else {
			return cfg, fmt.Errorf("invalid API_DEFAULT_LIMIT: %s", limitStr)
		}
	}

	if limitStr := os.Getenv("API_MAX_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			cfg.MaxLimit = limit
		} else {
			return cfg, fmt.Errorf("invalid API_MAX_LIMIT: %s", limitStr)
		}
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
