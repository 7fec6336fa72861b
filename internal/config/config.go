package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dialer worker.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Worker  WorkerConfig  `yaml:"worker"`
	Breaker BreakerConfig `yaml:"breaker"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the status HTTP endpoint settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port the status server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig holds the Postgres campaign store settings.
type StoreConfig struct {
	DatabaseURL    string `yaml:"database_url"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ConnMaxMinutes int    `yaml:"conn_max_minutes"`
}

// QueueConfig holds the Redis queue settings.
type QueueConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// WorkerConfig holds dispatch loop tuning.
type WorkerConfig struct {
	NumWorkers              int `yaml:"num_workers"`
	BatchSize               int `yaml:"batch_size"`
	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	ClaimLeaseMinutes       int `yaml:"claim_lease_minutes"`
	RedialDelayMinutes      int `yaml:"redial_delay_minutes"`
	RecoveryIntervalMinutes int `yaml:"recovery_interval_minutes"`
	StaleClaimMinutes       int `yaml:"stale_claim_minutes"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	OpenSeconds      int `yaml:"open_seconds"`
}

// OpenFor is how long a tripped breaker stays open before probing.
func (b BreakerConfig) OpenFor() time.Duration {
	return time.Duration(b.OpenSeconds) * time.Second
}

// RetryConfig holds the transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts     int `yaml:"max_attempts"`
	BaseDelayMillis int `yaml:"base_delay_millis"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
}

// LoggingConfig holds structured logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PollInterval returns the poll cadence as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// ClaimLease returns the claim lease horizon as a duration.
func (w WorkerConfig) ClaimLease() time.Duration {
	return time.Duration(w.ClaimLeaseMinutes) * time.Minute
}

// RedialDelay returns the failed-attempt reschedule delay as a duration.
func (w WorkerConfig) RedialDelay() time.Duration {
	return time.Duration(w.RedialDelayMinutes) * time.Minute
}

// RecoveryInterval returns the stale-claim scan cadence as a duration.
func (w WorkerConfig) RecoveryInterval() time.Duration {
	return time.Duration(w.RecoveryIntervalMinutes) * time.Minute
}

// StaleClaimAge returns the abandoned-claim age as a duration.
func (w WorkerConfig) StaleClaimAge() time.Duration {
	return time.Duration(w.StaleClaimMinutes) * time.Minute
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Queue.RedisURL == "" {
		cfg.Queue.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 25
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = 5
	}
	if cfg.Store.ConnMaxMinutes == 0 {
		cfg.Store.ConnMaxMinutes = 30
	}
	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = 4
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 50
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 30
	}
	if cfg.Worker.ClaimLeaseMinutes == 0 {
		cfg.Worker.ClaimLeaseMinutes = 10
	}
	if cfg.Worker.RedialDelayMinutes == 0 {
		cfg.Worker.RedialDelayMinutes = 15
	}
	if cfg.Worker.RecoveryIntervalMinutes == 0 {
		cfg.Worker.RecoveryIntervalMinutes = 2
	}
	if cfg.Worker.StaleClaimMinutes == 0 {
		cfg.Worker.StaleClaimMinutes = 30
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.OpenSeconds == 0 {
		cfg.Breaker.OpenSeconds = 30
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BaseDelayMillis == 0 {
		cfg.Retry.BaseDelayMillis = 1000
	}
	if cfg.Retry.MaxDelaySeconds == 0 {
		cfg.Retry.MaxDelaySeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first if present; a missing config file falls back
// to defaults so the worker can run on env vars alone.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &Config{}
		applyDefaults(cfg)
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Store.DatabaseURL = dsn
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Queue.RedisURL = redisURL
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if n := os.Getenv("WORKER_COUNT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.Worker.NumWorkers = v
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if cfg.Store.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set store.database_url or DATABASE_URL)")
	}
	return cfg, nil
}
