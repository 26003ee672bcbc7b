// Package config loads service configuration from environment variables
// with optional overrides from ~/.modelmux/config.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/modelmux/internal/ai"
)

// Config is the root configuration for the routing service.
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Router      RouterConfig    `mapstructure:"router"`
	Providers   ProviderConfig  `mapstructure:"providers"`
	Catalog     CatalogConfig   `mapstructure:"catalog"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RouterConfig holds routing policy settings.
// ClassificationConfidenceThreshold is validated and stored but the hybrid
// classifier currently keys off its own internal threshold; the knob is
// reserved for per-deployment tuning.
type RouterConfig struct {
	ClassificationConfidenceThreshold float64 `mapstructure:"classification_confidence_threshold"`
	MaxRetryAttempts                  int     `mapstructure:"max_retry_attempts"`
	RequestTimeoutMs                  int     `mapstructure:"request_timeout_ms"`
	DefaultPriorityPreset             string  `mapstructure:"default_priority_preset"`
}

// ProviderConfig holds upstream provider credentials. A missing key disables
// that provider's catalog entries at startup.
type ProviderConfig struct {
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	AnthropicAPIKey   string `mapstructure:"anthropic_api_key"`
	GoogleAPIKey      string `mapstructure:"google_api_key"`
	HuggingFaceAPIKey string `mapstructure:"huggingface_api_key"`
}

// KeyFor returns the API key configured for a provider name, or "" when the
// provider is unknown or not configured.
func (p ProviderConfig) KeyFor(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return p.OpenAIAPIKey
	case "anthropic":
		return p.AnthropicAPIKey
	case "google":
		return p.GoogleAPIKey
	case "huggingface":
		return p.HuggingFaceAPIKey
	default:
		return ""
	}
}

// CatalogConfig points at an optional model catalog file. When Path is empty
// the embedded default catalog is used.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig holds archive database settings. An empty Driver disables
// the durable request archive entirely.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
	SQLitePath      string `mapstructure:"sqlite_path"`
}

// Enabled reports whether a request archive should be opened.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Driver) != ""
}

// RedisConfig holds Redis settings for distributed rate limiting. An empty
// Host leaves the limiter on its in-process fallback.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis connection should be attempted.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig holds request throttling settings for the routing endpoint.
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Requests      int  `mapstructure:"requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

// Window returns the rate limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// SentryConfig holds error tracking settings. Telemetry is disabled when the
// DSN is empty.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// Enabled reports whether Sentry should be initialised.
func (s SentryConfig) Enabled() bool {
	return strings.TrimSpace(s.DSN) != ""
}

// Load reads configuration from the environment, layered over an optional
// ~/.modelmux/config.json file. Environment variables take precedence over
// the file, which takes precedence over defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".modelmux", "config.json")
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if readErr := v.ReadInConfig(); readErr != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, readErr)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := normalizeAndValidate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("router.classification_confidence_threshold", 0.6)
	v.SetDefault("router.max_retry_attempts", 2)
	v.SetDefault("router.request_timeout_ms", 30000)
	v.SetDefault("router.default_priority_preset", "balanced")

	v.SetDefault("providers.openai_api_key", "")
	v.SetDefault("providers.anthropic_api_key", "")
	v.SetDefault("providers.google_api_key", "")
	v.SetDefault("providers.huggingface_api_key", "")

	v.SetDefault("catalog.path", "")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "modelmux")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.sqlite_path", "modelmux.db")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window_seconds", 60)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.traces_sample_rate", 0.1)
}

// bindEnvAliases wires the conventional environment names that do not follow
// viper's section_key derivation (OPENAI_API_KEY rather than
// PROVIDERS_OPENAI_API_KEY, and so on).
func bindEnvAliases(v *viper.Viper) error {
	aliases := [][]string{
		{"server.port", "PORT", "SERVER_PORT"},
		{"router.classification_confidence_threshold", "CLASSIFICATION_CONFIDENCE_THRESHOLD"},
		{"router.max_retry_attempts", "MAX_RETRY_ATTEMPTS"},
		{"router.request_timeout_ms", "REQUEST_TIMEOUT_MS"},
		{"router.default_priority_preset", "DEFAULT_PRIORITY_PRESET"},
		{"providers.openai_api_key", "OPENAI_API_KEY"},
		{"providers.anthropic_api_key", "ANTHROPIC_API_KEY"},
		{"providers.google_api_key", "GOOGLE_API_KEY"},
		{"providers.huggingface_api_key", "HUGGINGFACE_API_KEY"},
		{"catalog.path", "MODEL_CATALOG_PATH"},
		{"database.database_url", "DATABASE_URL"},
		{"database.sqlite_path", "SQLITE_PATH"},
		{"sentry.dsn", "SENTRY_DSN"},
	}
	for _, alias := range aliases {
		if err := v.BindEnv(alias...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", alias[0], err)
		}
	}
	return nil
}

func normalizeAndValidate(cfg *Config) error {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Router.ClassificationConfidenceThreshold < 0 || cfg.Router.ClassificationConfidenceThreshold > 1 {
		return fmt.Errorf("router.classification_confidence_threshold must be between 0 and 1, got %v",
			cfg.Router.ClassificationConfidenceThreshold)
	}
	if cfg.Router.MaxRetryAttempts < 1 {
		cfg.Router.MaxRetryAttempts = 1
	}
	if cfg.Router.MaxRetryAttempts > 5 {
		cfg.Router.MaxRetryAttempts = 5
	}
	if cfg.Router.RequestTimeoutMs < 5000 {
		cfg.Router.RequestTimeoutMs = 5000
	}
	if cfg.Router.RequestTimeoutMs > 120000 {
		cfg.Router.RequestTimeoutMs = 120000
	}
	cfg.Router.DefaultPriorityPreset = strings.ToLower(strings.TrimSpace(cfg.Router.DefaultPriorityPreset))
	if _, err := ai.ParsePreset(cfg.Router.DefaultPriorityPreset); err != nil {
		return fmt.Errorf("router.default_priority_preset: %w", err)
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Database.Driver = driver
	switch driver {
	case "", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver must be one of [sqlite postgres postgresql], got %q", cfg.Database.Driver)
	}
	if driver == "sqlite" && strings.TrimSpace(cfg.Database.SQLitePath) == "" {
		return fmt.Errorf("database.sqlite_path is required when database.driver is sqlite")
	}

	if cfg.RateLimit.Requests < 1 {
		cfg.RateLimit.Requests = 60
	}
	if cfg.RateLimit.WindowSeconds < 1 {
		cfg.RateLimit.WindowSeconds = 60
	}

	if cfg.Sentry.TracesSampleRate < 0 || cfg.Sentry.TracesSampleRate > 1 {
		cfg.Sentry.TracesSampleRate = 0.1
	}

	return nil
}
