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
	GetDatabaseMaxConns() int
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// LeadInboxConfig provides settings for the lead inbox processing pass.
type LeadInboxConfig interface {
	GetLeadBatchSize() int
	GetLeadMaxRetries() int
	GetLeadStaleThreshold() time.Duration
	GetLeadTimeout() time.Duration
	GetLeadConcurrency() int
	GetLeadSchedule() string
	GetCronSecret() string
	IsProduction() bool
}

// MetaConfig provides settings for the Meta lead ads webhook and Graph API.
type MetaConfig interface {
	GetMetaAppSecret() string
	GetMetaVerifyToken() string
	GetMetaGraphBaseURL() string
	GetMetaGraphVersion() string
	GetMetaGraphTimeout() time.Duration
}

// PhoneConfig provides the fallback region used to parse national phone numbers.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	DatabaseMaxConns   int
	MigrationsEnabled  bool
	JWTAccessSecret    string
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	LeadBatchSize      int
	LeadMaxRetries     int
	LeadStaleThreshold time.Duration
	LeadTimeout        time.Duration
	LeadConcurrency    int
	LeadSchedule       string
	CronSecret         string
	MetaAppSecret      string
	MetaVerifyToken    string
	MetaGraphBaseURL   string
	MetaGraphVersion   string
	MetaGraphTimeout   time.Duration
	PhoneDefaultRegion string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// LeadInboxConfig implementation
func (c *Config) GetLeadBatchSize() int                { return c.LeadBatchSize }
func (c *Config) GetLeadMaxRetries() int               { return c.LeadMaxRetries }
func (c *Config) GetLeadStaleThreshold() time.Duration { return c.LeadStaleThreshold }
func (c *Config) GetLeadTimeout() time.Duration        { return c.LeadTimeout }
func (c *Config) GetLeadConcurrency() int              { return c.LeadConcurrency }
func (c *Config) GetLeadSchedule() string              { return c.LeadSchedule }
func (c *Config) GetCronSecret() string                { return c.CronSecret }
func (c *Config) IsProduction() bool                   { return strings.EqualFold(c.Env, "production") }

// MetaConfig implementation
func (c *Config) GetMetaAppSecret() string           { return c.MetaAppSecret }
func (c *Config) GetMetaVerifyToken() string         { return c.MetaVerifyToken }
func (c *Config) GetMetaGraphBaseURL() string        { return c.MetaGraphBaseURL }
func (c *Config) GetMetaGraphVersion() string        { return c.MetaGraphVersion }
func (c *Config) GetMetaGraphTimeout() time.Duration { return c.MetaGraphTimeout }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:   mustInt(getEnv("DB_MAX_CONNS", "25")),
		MigrationsEnabled:  strings.EqualFold(getEnv("DB_MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		LeadBatchSize:      mustInt(getEnv("LEAD_INBOX_BATCH_SIZE", "50")),
		LeadMaxRetries:     mustInt(getEnv("LEAD_INBOX_MAX_RETRIES", "3")),
		LeadStaleThreshold: mustDuration(getEnv("LEAD_INBOX_STALE_THRESHOLD", "10m")),
		LeadTimeout:        mustDuration(getEnv("LEAD_INBOX_LEAD_TIMEOUT", "30s")),
		LeadConcurrency:    mustInt(getEnv("LEAD_INBOX_CONCURRENCY", "8")),
		LeadSchedule:       getEnv("LEAD_INBOX_SCHEDULE", "@every 1m"),
		CronSecret:         getEnv("CRON_SECRET", ""),
		MetaAppSecret:      getEnv("META_APP_SECRET", ""),
		MetaVerifyToken:    getEnv("META_VERIFY_TOKEN", ""),
		MetaGraphBaseURL:   getEnv("META_GRAPH_BASE_URL", "https://graph.facebook.com"),
		MetaGraphVersion:   getEnv("META_GRAPH_VERSION", "v21.0"),
		MetaGraphTimeout:   mustDuration(getEnv("META_GRAPH_TIMEOUT", "10s")),
		PhoneDefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() && c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required when APP_ENV is production")
	}
	if c.LeadBatchSize < 1 {
		return fmt.Errorf("LEAD_INBOX_BATCH_SIZE must be a positive integer")
	}
	if c.LeadMaxRetries < 0 {
		return fmt.Errorf("LEAD_INBOX_MAX_RETRIES cannot be negative")
	}
	if c.DatabaseMaxConns > 0 && c.LeadConcurrency >= c.DatabaseMaxConns {
		return fmt.Errorf("LEAD_INBOX_CONCURRENCY (%d) must be below DB_MAX_CONNS (%d)", c.LeadConcurrency, c.DatabaseMaxConns)
	}
	if c.LeadTimeout <= 0 || c.LeadStaleThreshold <= 0 {
		return fmt.Errorf("LEAD_INBOX_LEAD_TIMEOUT and LEAD_INBOX_STALE_THRESHOLD must be positive durations")
	}
	// A lead still inside its timeout must never look stale to the recovery sweep.
	if c.LeadStaleThreshold <= 2*c.LeadTimeout {
		return fmt.Errorf("LEAD_INBOX_STALE_THRESHOLD (%s) must be more than twice LEAD_INBOX_LEAD_TIMEOUT (%s)", c.LeadStaleThreshold, c.LeadTimeout)
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
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
	result, err := strconv.Atoi(strings.TrimSpace(value))
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
