// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// Required keys in declaration order
const (
	KeyElasticsearchURL      = "ELASTICSEARCH_URL"
	KeyElasticsearchUsername = "ELASTICSEARCH_USERNAME"
	KeyElasticsearchPassword = "ELASTICSEARCH_PASSWORD"
	KeyEmbeddingAPIKey       = "EMBEDDING_API_KEY"
)

// Config holds every recognized option
type Config struct {
	ElasticsearchURL      string `mapstructure:"ELASTICSEARCH_URL"`
	ElasticsearchUsername string `mapstructure:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string `mapstructure:"ELASTICSEARCH_PASSWORD"`

	EmbeddingAPIKey  string  `mapstructure:"EMBEDDING_API_KEY"`
	EmbeddingModel   string  `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingBaseURL string  `mapstructure:"EMBEDDING_BASE_URL"`
	EmbeddingRPS     float64 `mapstructure:"EMBEDDING_RPS"`
	EmbeddingBurst   int     `mapstructure:"EMBEDDING_BURST"`
	EmbeddingTTLSec  int     `mapstructure:"EMBEDDING_CACHE_TTL_SEC"`

	VectorDims int `mapstructure:"VECTOR_DIMS"`

	RequestTimeoutSec     int `mapstructure:"REQUEST_TIMEOUT_SEC"`
	RetryMaxAttempts      int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryInitialBackoffMS int `mapstructure:"RETRY_INITIAL_BACKOFF_MS"`

	RedisURL string `mapstructure:"REDIS_URL"`

	HealthRequireData bool `mapstructure:"HEALTH_REQUIRE_DATA"`

	Port      string `mapstructure:"PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	KeyElasticsearchURL,
	KeyElasticsearchUsername,
	KeyElasticsearchPassword,
	KeyEmbeddingAPIKey,
	"EMBEDDING_MODEL",
	"EMBEDDING_BASE_URL",
	"EMBEDDING_RPS",
	"EMBEDDING_BURST",
	"EMBEDDING_CACHE_TTL_SEC",
	"VECTOR_DIMS",
	"REQUEST_TIMEOUT_SEC",
	"RETRY_MAX_ATTEMPTS",
	"RETRY_INITIAL_BACKOFF_MS",
	"REDIS_URL",
	"HEALTH_REQUIRE_DATA",
	"PORT",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// Load reads envFile (if present) into the process environment, then binds every key.
// Missing required keys are not an error here; see Missing and Validate.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(domain.ErrConfiguration, "failed to read env file",
				goerr.V("path", envFile), goerr.V("cause", err.Error()))
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("EMBEDDING_RPS", 10)
	v.SetDefault("EMBEDDING_BURST", 20)
	v.SetDefault("EMBEDDING_CACHE_TTL_SEC", 86400)
	v.SetDefault("VECTOR_DIMS", domain.DefaultVectorDims)
	v.SetDefault("REQUEST_TIMEOUT_SEC", 10)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_INITIAL_BACKOFF_MS", 200)
	v.SetDefault("HEALTH_REQUIRE_DATA", false)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerr.Wrap(domain.ErrConfiguration, "malformed configuration value",
			goerr.V("cause", err.Error()))
	}
	cfg.trim()

	return cfg, nil
}

func (c *Config) trim() {
	c.ElasticsearchURL = strings.TrimSpace(c.ElasticsearchURL)
	c.ElasticsearchUsername = strings.TrimSpace(c.ElasticsearchUsername)
	c.EmbeddingAPIKey = strings.TrimSpace(c.EmbeddingAPIKey)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
}

// Missing returns the unset required keys in declaration order
func (c *Config) Missing() []string {
	var missing []string
	for _, kv := range []struct {
		key   string
		value string
	}{
		{KeyElasticsearchURL, c.ElasticsearchURL},
		{KeyElasticsearchUsername, c.ElasticsearchUsername},
		{KeyElasticsearchPassword, c.ElasticsearchPassword},
		{KeyEmbeddingAPIKey, c.EmbeddingAPIKey},
	} {
		if kv.value == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

// Validate returns domain.ErrConfiguration for missing or malformed values
func (c *Config) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return goerr.Wrap(domain.ErrConfiguration, "missing required configuration: "+strings.Join(missing, ", "),
			goerr.V(domain.MissingKeysKey, missing))
	}
	if c.VectorDims <= 0 {
		return goerr.Wrap(domain.ErrConfiguration, "VECTOR_DIMS must be positive",
			goerr.V("VECTOR_DIMS", c.VectorDims))
	}
	if c.RequestTimeoutSec <= 0 {
		return goerr.Wrap(domain.ErrConfiguration, "REQUEST_TIMEOUT_SEC must be positive",
			goerr.V("REQUEST_TIMEOUT_SEC", c.RequestTimeoutSec))
	}
	if c.RetryMaxAttempts < 1 {
		return goerr.Wrap(domain.ErrConfiguration, "RETRY_MAX_ATTEMPTS must be at least 1",
			goerr.V("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequestTimeout is the bound applied to each network call
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RetryInitialBackoff is the first retry wait
func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMS) * time.Millisecond
}

// EmbeddingCacheTTL is how long cached vectors live
func (c *Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingTTLSec) * time.Second
}

// ParseLevel maps LOG_LEVEL to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, goerr.Wrap(domain.ErrConfiguration, "unknown LOG_LEVEL", goerr.V("LOG_LEVEL", s))
	}
}
