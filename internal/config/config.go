// Package config loads the dispatch/lifecycle core's configuration from an
// optional YAML file plus environment overrides, following the teacher's
// envdecode + godotenv + yaml.v3 layering.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP intake listener.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" env:"SERVER_ADDR"`
}

// DatabaseConfig controls the postgres Store.
type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MigrateOnStart bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls the business-logic logger (pkg/logger, logrus).
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// RedisConfig is optional; an empty Addr disables the Device Registry's
// last-seen mirror.
type RedisConfig struct {
	Addr string `json:"addr" yaml:"addr" env:"REDIS_ADDR"`
}

// HeartbeatConfig controls the Heartbeat Monitor.
type HeartbeatConfig struct {
	IntervalSeconds int `json:"interval_seconds" yaml:"interval_seconds" env:"HEARTBEAT_INTERVAL_SECONDS"`
	SweepSeconds    int `json:"sweep_seconds" yaml:"sweep_seconds" env:"HEARTBEAT_SWEEP_SECONDS"`
}

// AssignmentConfig controls the Assignment Engine and Ledger.
type AssignmentConfig struct {
	MaxSerializationRetries          int    `json:"max_serialization_retries" yaml:"max_serialization_retries" env:"MAX_SERIALIZATION_RETRIES"`
	RequestorMarginRatio             string `json:"requestor_margin_ratio" yaml:"requestor_margin_ratio" env:"REQUESTOR_MARGIN_RATIO"`
	SelfAssignAllowedInDebug         bool   `json:"self_assign_allowed_in_debug" yaml:"self_assign_allowed_in_debug" env:"ASSIGNMENT_SELF_ASSIGN_ALLOWED_IN_DEBUG"`
	UploadURLTTLMinutes              int    `json:"upload_url_ttl_minutes" yaml:"upload_url_ttl_minutes" env:"UPLOAD_URL_TTL_MINUTES"`
}

// DispatchConfig controls the Dispatch Channel's JWT handshake.
type DispatchConfig struct {
	JWTSecret   string `json:"jwt_secret" yaml:"jwt_secret" env:"DISPATCH_JWT_SECRET"`
	JWTIssuer   string `json:"jwt_issuer" yaml:"jwt_issuer" env:"DISPATCH_JWT_ISSUER"`
	JWTAudience string `json:"jwt_audience" yaml:"jwt_audience" env:"DISPATCH_JWT_AUDIENCE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Heartbeat  HeartbeatConfig  `json:"heartbeat" yaml:"heartbeat"`
	Assignment AssignmentConfig `json:"assignment" yaml:"assignment"`
	Dispatch   DispatchConfig   `json:"dispatch" yaml:"dispatch"`
}

// New returns a Config populated with the spec's §9 defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			MigrateOnStart: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds: 300,
			SweepSeconds:    30,
		},
		Assignment: AssignmentConfig{
			MaxSerializationRetries:  3,
			RequestorMarginRatio:     "1.20",
			SelfAssignAllowedInDebug: false,
			UploadURLTTLMinutes:      15,
		},
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE, falling
// back to configs/config.yaml) and then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
