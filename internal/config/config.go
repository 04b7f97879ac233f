// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string `yaml:"port"`

	// Base URL of the DeFiLlama yields API
	DefiLlamaURL string        `yaml:"defillama_url"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Refresh cadence and persistence batching
	RefreshCron string `yaml:"refresh_cron"`
	BatchSize   int    `yaml:"batch_size"`
	MaxPools    int    `yaml:"max_pools"`

	// Relational store
	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`

	// Optional Redis cache for dashboard stats; empty address disables it
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"`

	// Process-wide LLM key used when a user has not saved their own
	DefaultAPIKey   string        `yaml:"-"`
	AgentStageDelay time.Duration `yaml:"agent_stage_delay"`

	// Agent endpoint rate limiting
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// OpenTelemetry endpoint for observability
	OtelEndpoint string `yaml:"otel_endpoint"`

	EnableMetrics  bool          `yaml:"enable_metrics"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Port:            "8080",
		DefiLlamaURL:    "https://yields.llama.fi",
		FetchTimeout:    30 * time.Second,
		RefreshCron:     "0 */6 * * *",
		BatchSize:       100,
		MaxPools:        500,
		DBDriver:        DriverSQLite,
		DatabaseURL:     "data/pools.db",
		StatsCacheTTL:   5 * time.Minute,
		RateLimitRPS:    2,
		RateLimitBurst:  5,
		EnableMetrics:   true,
		RequestTimeout:  10 * time.Second,
		WriteTimeout:    2 * time.Minute,
		AgentStageDelay: 0,
	}
}

// Load creates a new Config from an optional YAML file named by CONFIG_PATH,
// overridden by environment variables
func Load() (Config, error) {
	cfg := Defaults()

	if path, ok := GetEnv("CONFIG_PATH"); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = GetEnvOrDefault("PORT", cfg.Port)
	cfg.DefiLlamaURL = GetEnvOrDefault("DEFILLAMA_URL", cfg.DefiLlamaURL)
	cfg.FetchTimeout = GetEnvAsDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.RefreshCron = GetEnvOrDefault("REFRESH_CRON", cfg.RefreshCron)
	cfg.BatchSize = GetEnvAsInt("REFRESH_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxPools = GetEnvAsInt("MAX_POOLS", cfg.MaxPools)
	cfg.DBDriver = strings.ToLower(GetEnvOrDefault("DB_DRIVER", cfg.DBDriver))
	cfg.DatabaseURL = GetEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = GetEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = GetEnvOrDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = GetEnvAsInt("REDIS_DB", cfg.RedisDB)
	cfg.StatsCacheTTL = GetEnvAsDuration("STATS_CACHE_TTL", cfg.StatsCacheTTL)
	cfg.DefaultAPIKey = GetEnvOrDefault("OPENAI_API_KEY", cfg.DefaultAPIKey)
	cfg.AgentStageDelay = GetEnvAsDuration("AGENT_STAGE_DELAY", cfg.AgentStageDelay)
	cfg.RateLimitRPS = GetEnvAsFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = GetEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
	cfg.EnableMetrics = GetEnvAsBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.WriteTimeout = GetEnvAsDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be set")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxPools <= 0 {
		return fmt.Errorf("max pools must be positive, got %d", c.MaxPools)
	}
	if c.RefreshCron == "" {
		return fmt.Errorf("refresh cron must be set")
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
