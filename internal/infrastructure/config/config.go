// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion
//  2. Environment variables (fallback)
//
// Any field left out of the YAML file keeps its default value.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	batch := cfg.Bulk.BatchSize
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Bulk          BulkConfig          `yaml:"bulk"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BulkConfig tunes the bulk operation engine
type BulkConfig struct {
	BatchSize         int      `yaml:"batch_size"`
	BatchPause        Duration `yaml:"batch_pause"`
	MaxConcurrentJobs int      `yaml:"max_concurrent_jobs"`
	JobTimeout        Duration `yaml:"job_timeout"`
	Retention         Duration `yaml:"retention"`
	StaleThreshold    Duration `yaml:"stale_threshold"`
	CleanupInterval   Duration `yaml:"cleanup_interval"`
}

// Archive backends
const (
	ArchiveNone   = "none"
	ArchiveSQLite = "sqlite"
	ArchiveRedis  = "redis"
)

// ArchiveConfig selects where finished operations are kept after they leave memory
type ArchiveConfig struct {
	Backend  string   `yaml:"backend"`
	RedisURL string   `yaml:"redis_url"`
	TTL      Duration `yaml:"ttl"`
}

// Export backends
const (
	ExportLocal = "local"
	ExportS3    = "s3"
)

// ExportConfig holds export artifact storage settings
type ExportConfig struct {
	Backend    string   `yaml:"backend"`
	LocalDir   string   `yaml:"local_dir"`
	BaseURL    string   `yaml:"base_url"`
	Bucket     string   `yaml:"bucket"`
	Prefix     string   `yaml:"prefix"`
	Region     string   `yaml:"region"`
	Endpoint   string   `yaml:"endpoint"` // e.g. http://localstack:4566
	PresignTTL Duration `yaml:"presign_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Duration is a time.Duration that unmarshals from strings like "250ms" or "30m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			DatabasePath: "marketplace.db",
		},
		Bulk: BulkConfig{
			BatchSize:         50,
			BatchPause:        Duration{100 * time.Millisecond},
			MaxConcurrentJobs: 4,
			JobTimeout:        Duration{30 * time.Minute},
			Retention:         Duration{24 * time.Hour},
			StaleThreshold:    Duration{30 * time.Minute},
			CleanupInterval:   Duration{5 * time.Minute},
		},
		Archive: ArchiveConfig{
			Backend: ArchiveSQLite,
			TTL:     Duration{7 * 24 * time.Hour},
		},
		Export: ExportConfig{
			Backend:    ExportLocal,
			LocalDir:   "./data/exports",
			BaseURL:    "http://localhost:8080/exports",
			Prefix:     "exports/",
			Region:     "us-east-1",
			PresignTTL: Duration{time.Hour},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${REDIS_URL})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := Default()

	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Storage.DatabasePath = getEnv("MARKETPLACE_DB_PATH", cfg.Storage.DatabasePath)

	cfg.Bulk.BatchSize = getEnvInt("BULK_BATCH_SIZE", cfg.Bulk.BatchSize)
	cfg.Bulk.MaxConcurrentJobs = getEnvInt("BULK_MAX_CONCURRENT_JOBS", cfg.Bulk.MaxConcurrentJobs)
	cfg.Bulk.BatchPause = getEnvDuration("BULK_BATCH_PAUSE", cfg.Bulk.BatchPause)
	cfg.Bulk.JobTimeout = getEnvDuration("BULK_JOB_TIMEOUT", cfg.Bulk.JobTimeout)
	cfg.Bulk.Retention = getEnvDuration("BULK_RETENTION", cfg.Bulk.Retention)

	cfg.Archive.Backend = getEnv("ARCHIVE_BACKEND", cfg.Archive.Backend)
	cfg.Archive.RedisURL = getEnv("REDIS_URL", cfg.Archive.RedisURL)
	cfg.Archive.TTL = getEnvDuration("ARCHIVE_TTL", cfg.Archive.TTL)

	cfg.Export.Backend = getEnv("EXPORT_BACKEND", cfg.Export.Backend)
	cfg.Export.LocalDir = getEnv("EXPORT_DIR", cfg.Export.LocalDir)
	cfg.Export.BaseURL = getEnv("EXPORT_BASE_URL", cfg.Export.BaseURL)
	cfg.Export.Bucket = getEnv("AWS_S3_BUCKET", cfg.Export.Bucket)
	cfg.Export.Prefix = getEnv("AWS_S3_PREFIX", cfg.Export.Prefix)
	cfg.Export.Region = getEnv("AWS_REGION", cfg.Export.Region)
	cfg.Export.Endpoint = getEnv("AWS_ENDPOINT", cfg.Export.Endpoint)

	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)

	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks settings that would make the engine unusable
func (c *Config) Validate() error {
	var errs []error
	if c.Bulk.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("bulk.batch_size must be positive, got %d", c.Bulk.BatchSize))
	}
	if c.Bulk.MaxConcurrentJobs <= 0 {
		errs = append(errs, fmt.Errorf("bulk.max_concurrent_jobs must be positive, got %d", c.Bulk.MaxConcurrentJobs))
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveSQLite:
	case ArchiveRedis:
		if c.Archive.RedisURL == "" {
			errs = append(errs, errors.New("archive.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive backend %q", c.Archive.Backend))
	}
	switch c.Export.Backend {
	case ExportLocal:
	case ExportS3:
		if c.Export.Bucket == "" {
			errs = append(errs, errors.New("export.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown export backend %q", c.Export.Backend))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback default
func getEnvDuration(key string, fallback Duration) Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return Duration{d}
		}
	}
	return fallback
}
