// Package config loads runtime configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Workflow   WorkflowConfig   `yaml:"workflow" env:"WORKFLOW"`
	Classifier ClassifierConfig `yaml:"classifier" env:"CLASSIFIER"`
	Memory     MemoryConfig     `yaml:"memory" env:"MEMORY"`
	Approval   ApprovalConfig   `yaml:"approval" env:"APPROVAL"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimit       float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst       int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// WorkflowConfig bounds graph execution.
type WorkflowConfig struct {
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
}

// ClassifierConfig bounds intent classification.
type ClassifierConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// MemoryConfig shapes per-user conversation memory.
type MemoryConfig struct {
	// Backend is "memory" or "redis".
	Backend    string        `yaml:"backend" env:"BACKEND"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
}

// ApprovalConfig shapes the human-in-the-loop window.
type ApprovalConfig struct {
	// Backend is "memory" or "database".
	Backend string        `yaml:"backend" env:"BACKEND"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
	// SweepInterval is how often overdue approvals are expired.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// CheckpointBackend is "memory" or "redis".
	CheckpointBackend string `yaml:"checkpoint_backend" env:"CHECKPOINT_BACKEND"`
}

// RedisConfig configures the Redis client shared by the checkpoint and
// memory stores.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the relational store behind approvals.
type DatabaseConfig struct {
	// Driver is "sqlite", "postgres", or "mysql".
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// AuthConfig configures inbound token verification.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens (HMAC).
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer" env:"ISSUER"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Workflow: WorkflowConfig{
			MaxIterations: 25,
		},
		Classifier: ClassifierConfig{
			Timeout: 2 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:    "memory",
			MaxEntries: 20,
			TTL:        30 * time.Minute,
		},
		Approval: ApprovalConfig{
			Backend:           "memory",
			TTL:               24 * time.Hour,
			SweepInterval:     time.Minute,
			CheckpointBackend: "memory",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "agentrun:",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Name:            "agentrun.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
	}
}

// Validate checks the configuration for values the runtime cannot start
// with.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Workflow.MaxIterations <= 0 {
		errs = append(errs, "workflow max_iterations must be positive")
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, "classifier timeout must be positive")
	}
	if c.Memory.MaxEntries <= 0 {
		errs = append(errs, "memory max_entries must be positive")
	}
	if c.Memory.TTL <= 0 {
		errs = append(errs, "memory ttl must be positive")
	}
	if c.Approval.TTL <= 0 {
		errs = append(errs, "approval ttl must be positive")
	}
	switch c.Memory.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown memory backend %q", c.Memory.Backend))
	}
	switch c.Approval.Backend {
	case "memory", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown approval backend %q", c.Approval.Backend))
	}
	switch c.Approval.CheckpointBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint backend %q", c.Approval.CheckpointBackend))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
