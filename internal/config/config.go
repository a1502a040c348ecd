// Package config provides environment-aware process configuration for the
// RAE engine (not to be confused with per-tenant configuration, which is
// data-driven and lives in the tenant package).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	raeruntime "github.com/dreamsoft-pro/rae/infrastructure/runtime"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds process-wide engine configuration.
type Config struct {
	Env Environment

	// Storage
	DatabaseDSN      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration
	RunMigrations    bool

	// Cache
	RedisURL string

	// LLM provider endpoints, one base URL/key pair per named provider;
	// tenant.Config's LLMProfiles and EmbeddingModelConfig.Name values
	// determine which provider a given model routes to (see
	// internal/rae.providerRoutes).
	ProviderAURL string
	ProviderAKey string
	ProviderBURL string
	ProviderBKey string

	// Logging
	LogLevel  string
	LogFormat string

	// Workers
	DecayCycleCron        string
	SummarizationCycleCron string
	DreamingCycleCron     string
	WorkerPoolSize        int

	// Audit
	AuditQueueDepth int

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Features
	TestMode bool
}

// Load loads configuration based on the MARBLE_ENV-style environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("RAE_ENV")
	if envStr == "" {
		envStr = string(raeruntime.Development)
	}

	parsedEnv, ok := raeruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid RAE_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.DatabaseDSN = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout := getEnv("DB_IDLE_TIMEOUT", "5m")
	idle, err := time.ParseDuration(dbIdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idle
	c.RunMigrations = getBoolEnv("RUN_MIGRATIONS", true)

	c.RedisURL = getEnv("REDIS_URL", "")

	c.ProviderAURL = getEnv("PROVIDER_A_URL", "")
	c.ProviderAKey = getEnv("PROVIDER_A_KEY", "")
	c.ProviderBURL = getEnv("PROVIDER_B_URL", "")
	c.ProviderBKey = getEnv("PROVIDER_B_KEY", "")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.DecayCycleCron = getEnv("DECAY_CYCLE_CRON", "0 3 * * *")
	c.SummarizationCycleCron = getEnv("SUMMARIZATION_CYCLE_CRON", "0 * * * *")
	c.DreamingCycleCron = getEnv("DREAMING_CYCLE_CRON", "0 4 * * *")
	c.WorkerPoolSize = getIntEnv("WORKER_POOL_SIZE", 4)

	c.AuditQueueDepth = getIntEnv("AUDIT_QUEUE_DEPTH", 4096)

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	c.TestMode = getBoolEnv("TEST_MODE", false)
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate validates the configuration, refusing unsafe production setups.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_URL must be set in production (in-memory storage is not durable)")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("invalid WORKER_POOL_SIZE: %d (must be >= 1)", c.WorkerPoolSize)
	}
	if c.AuditQueueDepth < 1 {
		return fmt.Errorf("invalid AUDIT_QUEUE_DEPTH: %d (must be >= 1)", c.AuditQueueDepth)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
