// Package common provides shared utilities for the rollup engine
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the rollup engine
type Config struct {
	Environment     string         `toml:"environment"`
	DisplayCurrency string         `toml:"display_currency"` // Currency used when formatting totals ("USD" default)
	Server          ServerConfig   `toml:"server"`
	Storage         StorageConfig  `toml:"storage"`
	Logging         LoggingConfig  `toml:"logging"`
	Jobs            JobsConfig     `toml:"jobs"`
	Reports         ReportsConfig  `toml:"reports"`
	Security        SecurityConfig `toml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "memory" or "surrealdb"
	Address   string `toml:"address"` // ws://host:port/rpc
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`  // "console" or "json"
	Outputs  []string `toml:"outputs"` // "console", "file"
	FilePath string   `toml:"file_path"`
}

// JobsConfig bounds the risk-stats ingestion job manager.
type JobsConfig struct {
	MaxConcurrentJobs int     `toml:"max_concurrent_jobs"`
	QueueSize         int     `toml:"queue_size"`
	DefaultBatchSize  int     `toml:"default_batch_size"`
	MaxBatchSize      int     `toml:"max_batch_size"`
	DefaultWorkers    int     `toml:"default_workers"`
	MaxWorkers        int     `toml:"max_workers"`
	UpsertsPerSecond  float64 `toml:"upserts_per_second"` // batch upserts per second across a job, 0 = unlimited
}

// GetMaxConcurrentJobs returns the number of jobs that may execute at once.
func (c JobsConfig) GetMaxConcurrentJobs() int {
	if c.MaxConcurrentJobs <= 0 {
		return 1
	}
	return c.MaxConcurrentJobs
}

// GetQueueSize returns the capacity of the pending job queue.
func (c JobsConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

func (c JobsConfig) GetDefaultBatchSize() int {
	if c.DefaultBatchSize <= 0 {
		return min(500, c.GetMaxBatchSize())
	}
	return c.DefaultBatchSize
}

func (c JobsConfig) GetMaxBatchSize() int {
	if c.MaxBatchSize <= 0 {
		return 10000
	}
	return c.MaxBatchSize
}

func (c JobsConfig) GetDefaultWorkers() int {
	if c.DefaultWorkers <= 0 {
		return min(4, c.GetMaxWorkers())
	}
	return c.DefaultWorkers
}

func (c JobsConfig) GetMaxWorkers() int {
	if c.MaxWorkers <= 0 {
		return 32
	}
	return c.MaxWorkers
}

// ReportsConfig holds report generation settings
type ReportsConfig struct {
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the report generation timeout
func (c *ReportsConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// SecurityConfig configures the value cipher used for monetary values at rest.
type SecurityConfig struct {
	ValueCipher string `toml:"value_cipher"` // "plain" or "secretbox"
	ValueKey    string `toml:"value_key"`    // base64 32-byte key for secretbox
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:     "development",
		DisplayCurrency: "USD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "memory",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "rollup",
			Database:  "rollup",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Outputs:  []string{"console"},
			FilePath: "./logs/rollup.log",
		},
		Jobs: JobsConfig{
			MaxConcurrentJobs: 2,
			QueueSize:         64,
			DefaultBatchSize:  500,
			MaxBatchSize:      10000,
			DefaultWorkers:    4,
			MaxWorkers:        32,
		},
		Reports: ReportsConfig{
			Timeout: "30s",
		},
		Security: SecurityConfig{
			ValueCipher: "plain",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ROLLUP_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("ROLLUP_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("ROLLUP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ROLLUP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if dc := os.Getenv("ROLLUP_DISPLAY_CURRENCY"); dc != "" {
		config.DisplayCurrency = strings.ToUpper(dc)
	}

	// Storage overrides
	if v := os.Getenv("ROLLUP_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("ROLLUP_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("ROLLUP_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("ROLLUP_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("ROLLUP_VALUE_KEY"); v != "" {
		config.Security.ValueKey = v
	}
	if v := os.Getenv("ROLLUP_VALUE_CIPHER"); v != "" {
		config.Security.ValueCipher = v
	}

	if v := os.Getenv("ROLLUP_JOBS_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Jobs.MaxWorkers = n
		}
	}
}

// Validate checks the combinations that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "surrealdb":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.Security.ValueCipher) {
	case "plain":
	case "secretbox":
		if c.Security.ValueKey == "" {
			return fmt.Errorf("security.value_key is required for the secretbox cipher")
		}
	default:
		return fmt.Errorf("unknown value cipher %q", c.Security.ValueCipher)
	}

	if c.Jobs.MaxBatchSize > 0 && c.Jobs.DefaultBatchSize > c.Jobs.MaxBatchSize {
		return fmt.Errorf("jobs.default_batch_size %d exceeds jobs.max_batch_size %d", c.Jobs.DefaultBatchSize, c.Jobs.MaxBatchSize)
	}
	if c.Jobs.MaxWorkers > 0 && c.Jobs.DefaultWorkers > c.Jobs.MaxWorkers {
		return fmt.Errorf("jobs.default_workers %d exceeds jobs.max_workers %d", c.Jobs.DefaultWorkers, c.Jobs.MaxWorkers)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
