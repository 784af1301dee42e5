// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides settings for the redis-backed key-value store.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// QueueConfig provides tuning for the background job queue.
type QueueConfig interface {
	GetQueueConcurrency() int
	GetQueueMaxAttempts() int
	GetQueueBackoffBase() time.Duration
	GetQueueBackoffCap() time.Duration
	GetQueueJobTTL() time.Duration
	GetQueueDeadLetterRetention() time.Duration
	GetQueueIdleDelay() time.Duration
	GetQueueBreakerCooldown() time.Duration
	GetQueueBreakerSlowPoll() time.Duration
}

// PollerConfig provides settings for the form-event poller.
type PollerConfig interface {
	GetPollInterval() time.Duration
	GetPollPageSize() int
	GetPollLookback() time.Duration
	GetPollTenantRate() float64
	GetTenantsFile() string
	GetCursorDir() string
	GetCursorStaleness() time.Duration
}

// ComplianceConfig provides settings for the downstream compliance provider.
type ComplianceConfig interface {
	RedisConfig
	GetComplianceQueueName() string
	GetComplianceAPIURL() string
	GetComplianceAPIKey() string
	IsComplianceEnabled() bool
}

// HTTPConfig provides settings for the ops HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	RedisURL                 string
	RedisTLSInsecure         bool
	CORSOrigins              []string
	QueueConcurrency         int
	QueueMaxAttempts         int
	QueueBackoffBase         time.Duration
	QueueBackoffCap          time.Duration
	QueueJobTTL              time.Duration
	QueueDeadLetterRetention time.Duration
	QueueIdleDelay           time.Duration
	QueueBreakerCooldown     time.Duration
	QueueBreakerSlowPoll     time.Duration
	PollInterval             time.Duration
	PollPageSize             int
	PollLookback             time.Duration
	PollTenantRate           float64
	TenantsFile              string
	CursorDir                string
	CursorStaleness          time.Duration
	ComplianceQueueName      string
	ComplianceAPIURL         string
	ComplianceAPIKey         string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// QueueConfig implementation
func (c *Config) GetQueueConcurrency() int                   { return c.QueueConcurrency }
func (c *Config) GetQueueMaxAttempts() int                   { return c.QueueMaxAttempts }
func (c *Config) GetQueueBackoffBase() time.Duration         { return c.QueueBackoffBase }
func (c *Config) GetQueueBackoffCap() time.Duration          { return c.QueueBackoffCap }
func (c *Config) GetQueueJobTTL() time.Duration              { return c.QueueJobTTL }
func (c *Config) GetQueueDeadLetterRetention() time.Duration { return c.QueueDeadLetterRetention }
func (c *Config) GetQueueIdleDelay() time.Duration           { return c.QueueIdleDelay }
func (c *Config) GetQueueBreakerCooldown() time.Duration     { return c.QueueBreakerCooldown }
func (c *Config) GetQueueBreakerSlowPoll() time.Duration     { return c.QueueBreakerSlowPoll }

// PollerConfig implementation
func (c *Config) GetPollInterval() time.Duration    { return c.PollInterval }
func (c *Config) GetPollPageSize() int              { return c.PollPageSize }
func (c *Config) GetPollLookback() time.Duration    { return c.PollLookback }
func (c *Config) GetPollTenantRate() float64        { return c.PollTenantRate }
func (c *Config) GetTenantsFile() string            { return c.TenantsFile }
func (c *Config) GetCursorDir() string              { return c.CursorDir }
func (c *Config) GetCursorStaleness() time.Duration { return c.CursorStaleness }

// ComplianceConfig implementation
func (c *Config) GetComplianceQueueName() string { return c.ComplianceQueueName }
func (c *Config) GetComplianceAPIURL() string    { return c.ComplianceAPIURL }
func (c *Config) GetComplianceAPIKey() string    { return c.ComplianceAPIKey }
func (c *Config) IsComplianceEnabled() bool      { return c.ComplianceAPIURL != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		CORSOrigins:              splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		QueueConcurrency:         mustInt(getEnv("QUEUE_CONCURRENCY", "5")),
		QueueMaxAttempts:         mustInt(getEnv("QUEUE_MAX_ATTEMPTS", "3")),
		QueueBackoffBase:         mustDuration(getEnv("QUEUE_BACKOFF_BASE", "2s")),
		QueueBackoffCap:          mustDuration(getEnv("QUEUE_BACKOFF_CAP", "5m")),
		QueueJobTTL:              mustDuration(getEnv("QUEUE_JOB_TTL", "24h")),
		QueueDeadLetterRetention: mustDuration(getEnv("QUEUE_DEAD_LETTER_RETENTION", "168h")),
		QueueIdleDelay:           mustDuration(getEnv("QUEUE_IDLE_DELAY", "1s")),
		QueueBreakerCooldown:     mustDuration(getEnv("QUEUE_BREAKER_COOLDOWN", "30s")),
		QueueBreakerSlowPoll:     mustDuration(getEnv("QUEUE_BREAKER_SLOW_POLL", "15s")),
		PollInterval:             mustDuration(getEnv("POLL_INTERVAL", "1m")),
		PollPageSize:             mustInt(getEnv("POLL_PAGE_SIZE", "50")),
		PollLookback:             mustDuration(getEnv("POLL_LOOKBACK", "720h")),
		PollTenantRate:           mustFloat(getEnv("POLL_TENANT_RATE", "2")),
		TenantsFile:              getEnv("TENANTS_FILE", "tenants.yaml"),
		CursorDir:                getEnv("CURSOR_DIR", "data/cursors"),
		CursorStaleness:          mustDuration(getEnv("CURSOR_STALENESS", "2160h")),
		ComplianceQueueName:      getEnv("COMPLIANCE_QUEUE_NAME", "compliance"),
		ComplianceAPIURL:         getEnv("COMPLIANCE_API_URL", ""),
		ComplianceAPIKey:         getEnv("COMPLIANCE_API_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.QueueConcurrency < 1 {
		return nil, fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	if cfg.QueueMaxAttempts < 1 {
		return nil, fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PollPageSize < 1 {
		return nil, fmt.Errorf("POLL_PAGE_SIZE must be at least 1")
	}
	if cfg.IsComplianceEnabled() && cfg.ComplianceAPIKey == "" {
		return nil, fmt.Errorf("COMPLIANCE_API_KEY is required when COMPLIANCE_API_URL is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
