// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/etf-backtester/internal/modules/marketdata"
	"github.com/aristath/etf-backtester/internal/scheduler"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Directory holding the backtests database (always absolute)
	Port           int
	LogLevel       string
	DevMode        bool   // Pretty logs, no response compression
	DefaultDataURL string // CSV used when a request names no data source
	R2             marketdata.R2Config
	R2Prefix       string

	HibernateAfter    time.Duration
	HibernateSchedule string
	AutoStepSchedule  string // Empty disables auto-stepping
	AutoStepDays      int

	MaxConcurrentBacktests int
	MaxStepDays            int
	HTTPDataTimeout        time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("BACKTEST_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	hibernateAfter, err := getEnvAsDuration("HIBERNATE_AFTER", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	dataTimeout, err := getEnvAsDuration("HTTP_DATA_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        dataDir,
		Port:           getEnvAsInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		DefaultDataURL: getEnv("DEFAULT_DATA_URL", ""),
		R2: marketdata.R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Endpoint:        getEnv("R2_ENDPOINT", ""),
		},
		R2Prefix:               getEnv("R2_PREFIX", ""),
		HibernateAfter:         hibernateAfter,
		HibernateSchedule:      getEnv("HIBERNATE_SCHEDULE", "@every 1m"),
		AutoStepSchedule:       getEnv("AUTO_STEP_SCHEDULE", ""),
		AutoStepDays:           getEnvAsInt("AUTO_STEP_DAYS", 5),
		MaxConcurrentBacktests: getEnvAsInt("MAX_CONCURRENT_BACKTESTS", 16),
		MaxStepDays:            getEnvAsInt("MAX_STEP_DAYS", 3650),
		HTTPDataTimeout:        dataTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxConcurrentBacktests < 1 {
		return fmt.Errorf("MAX_CONCURRENT_BACKTESTS must be positive, got %d", c.MaxConcurrentBacktests)
	}
	if c.MaxStepDays < 1 {
		return fmt.Errorf("MAX_STEP_DAYS must be positive, got %d", c.MaxStepDays)
	}
	if c.AutoStepDays < 1 {
		return fmt.Errorf("AUTO_STEP_DAYS must be positive, got %d", c.AutoStepDays)
	}
	if c.HibernateAfter <= 0 {
		return fmt.Errorf("HIBERNATE_AFTER must be positive, got %s", c.HibernateAfter)
	}
	if c.HTTPDataTimeout <= 0 {
		return fmt.Errorf("HTTP_DATA_TIMEOUT must be positive, got %s", c.HTTPDataTimeout)
	}

	if err := scheduler.ValidateSchedule(c.HibernateSchedule); err != nil {
		return fmt.Errorf("invalid HIBERNATE_SCHEDULE %q: %w", c.HibernateSchedule, err)
	}
	if c.AutoStepSchedule != "" {
		if err := scheduler.ValidateSchedule(c.AutoStepSchedule); err != nil {
			return fmt.Errorf("invalid AUTO_STEP_SCHEDULE %q: %w", c.AutoStepSchedule, err)
		}
	}
	return nil
}

// DatabasePath is the location of the backtests database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "backtests.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
