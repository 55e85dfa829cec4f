package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Scheduler   SchedulerConfig
	Alerting    AlertingConfig
	Correlation CorrelationConfig
	Archive     ArchiveConfig
	Collector   CollectorConfig
	Logging     LoggingConfig
	Definitions DefinitionsConfig
}

// ServerConfig contains the metrics/health HTTP endpoint configuration
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// SchedulerConfig tunes the health check scheduler
type SchedulerConfig struct {
	MaxChecksPerSecond float64
	Retries            int
	RetryBackoff       time.Duration
}

// AlertingConfig tunes the alert engine sweepers and the metric store
type AlertingConfig struct {
	EscalationSweepInterval  time.Duration
	SuppressionSweepInterval time.Duration
	MetricTTL                time.Duration
}

// CorrelationConfig tunes the correlation engine
type CorrelationConfig struct {
	Window    time.Duration
	Threshold float64
}

// ArchiveConfig contains the resolved-alert archive configuration
type ArchiveConfig struct {
	Enabled bool
	Path    string
}

// CollectorConfig tunes the local system metrics collector
type CollectorConfig struct {
	Enabled  bool
	TargetID string
	Interval time.Duration
	DiskPath string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// DefinitionsConfig points at the declarative targets/rules/policies file
type DefinitionsConfig struct {
	Path string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			MaxChecksPerSecond: getEnvAsFloat("SCHEDULER_MAX_CHECKS_PER_SECOND", 50),
			Retries:            getEnvAsInt("SCHEDULER_RETRIES", 2),
			RetryBackoff:       getEnvAsDuration("SCHEDULER_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Alerting: AlertingConfig{
			EscalationSweepInterval:  getEnvAsDuration("ESCALATION_SWEEP_INTERVAL", 30*time.Second),
			SuppressionSweepInterval: getEnvAsDuration("SUPPRESSION_SWEEP_INTERVAL", time.Minute),
			MetricTTL:                getEnvAsDuration("METRIC_TTL", 5*time.Minute),
		},
		Correlation: CorrelationConfig{
			Window:    getEnvAsDuration("CORRELATION_WINDOW", 5*time.Minute),
			Threshold: getEnvAsFloat("CORRELATION_THRESHOLD", 0.8),
		},
		Archive: ArchiveConfig{
			Enabled: getEnvAsBool("ARCHIVE_ENABLED", true),
			Path:    getEnv("ARCHIVE_PATH", "./sams-archive.db"),
		},
		Collector: CollectorConfig{
			Enabled:  getEnvAsBool("COLLECTOR_ENABLED", false),
			TargetID: getEnv("COLLECTOR_TARGET_ID", "self"),
			Interval: getEnvAsDuration("COLLECTOR_INTERVAL", 15*time.Second),
			DiskPath: getEnv("COLLECTOR_DISK_PATH", "/"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Definitions: DefinitionsConfig{
			Path: getEnv("DEFINITIONS_PATH", "./definitions.yaml"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Correlation.Threshold < 0 || c.Correlation.Threshold > 1 {
		return fmt.Errorf("correlation threshold must be in [0, 1], got %v", c.Correlation.Threshold)
	}

	if c.Scheduler.Retries < 0 {
		return fmt.Errorf("scheduler retries must be >= 0, got %d", c.Scheduler.Retries)
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("ARCHIVE_PATH must be set when the archive is enabled")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
