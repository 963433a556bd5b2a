// Package config holds packd server configuration.
package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// BaseURL is the externally visible origin, used to build download and
	// minifest URLs.
	BaseURL string `yaml:"base_url"`

	// DatabaseDriver is "sqlite" or "postgres". DatabaseURL is a file path
	// for sqlite and a connection string for postgres.
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	// RedisAddr enables the shared minifest cache; empty means the
	// in-process cache.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// SigningKeyFile points at a hex ed25519 seed. Empty generates an
	// ephemeral key, which is only acceptable for development: packs
	// signed with it cannot be verified after a restart.
	SigningKeyFile string `yaml:"signing_key_file"`

	// AuthSecret signs admin JWTs. Empty disables auth entirely (dev only).
	AuthSecret string `yaml:"auth_secret"`

	// UploadRatePerMinute throttles uploads per client; 0 disables.
	UploadRatePerMinute int `yaml:"upload_rate_per_minute"`

	TelemetryEnabled bool    `yaml:"telemetry_enabled"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	SampleRate       float64 `yaml:"sample_rate"`
	Environment      string  `yaml:"environment"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            "INFO",
		BaseURL:             "http://localhost:8080",
		DatabaseDriver:      "sqlite",
		DatabaseURL:         "data/packd.db",
		UploadRatePerMinute: 30,
		OTLPEndpoint:        "localhost:4317",
		SampleRate:          1.0,
		Environment:         "development",
	}
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.BaseURL, "PACKD_BASE_URL")
	setString(&c.DatabaseDriver, "PACKD_DB_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisAddr, "PACKD_REDIS_ADDR")
	setString(&c.RedisPassword, "PACKD_REDIS_PASSWORD")
	setInt(&c.RedisDB, "PACKD_REDIS_DB")
	setString(&c.SigningKeyFile, "PACKD_SIGNING_KEY_FILE")
	setString(&c.AuthSecret, "PACKD_AUTH_SECRET")
	setInt(&c.UploadRatePerMinute, "PACKD_UPLOAD_RATE_PER_MINUTE")
	setBool(&c.TelemetryEnabled, "PACKD_TELEMETRY_ENABLED")
	setString(&c.OTLPEndpoint, "OTLP_ENDPOINT")
	setFloat(&c.SampleRate, "PACKD_SAMPLE_RATE")
	setString(&c.Environment, "PACKD_ENVIRONMENT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
