package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Catalog source kinds
const (
	SourceSQLite = "sqlite"
	SourceRemote = "remote"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CatalogConfig selects and configures the Candidate Source
type CatalogConfig struct {
	Source        string        `mapstructure:"source"` // "sqlite" or "remote"
	DBPath        string        `mapstructure:"db_path"`
	SeedFile      string        `mapstructure:"seed_file"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// MatchingConfig tunes matching and the interactive suggestion loop
type MatchingConfig struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	MinQueryLength   int           `mapstructure:"min_query_length"`
	SuggestionLimit  int           `mapstructure:"suggestion_limit"`
	FoldDiacritics   bool          `mapstructure:"fold_diacritics"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
}

// OCRConfig holds the Recognition service settings. An empty BaseURL disables image upload.
type OCRConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medicompare/")

	// MEDICOMPARE_CATALOG_DB_PATH -> catalog.db_path
	v.SetEnvPrefix("MEDICOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
// Every key needs a default so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Catalog defaults
	v.SetDefault("catalog.source", SourceSQLite)
	v.SetDefault("catalog.db_path", "data/catalog.db")
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.lookup_timeout", "30s")
	v.SetDefault("catalog.rate_limit", 10)

	// Cache defaults
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.session_ttl", "2h")

	// Matching defaults
	v.SetDefault("matching.debounce", "250ms")
	v.SetDefault("matching.min_query_length", 2)
	v.SetDefault("matching.suggestion_limit", 10)
	v.SetDefault("matching.fold_diacritics", false)
	v.SetDefault("matching.batch_concurrency", 4)

	// OCR defaults
	v.SetDefault("ocr.base_url", "")
	v.SetDefault("ocr.timeout", "60s")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 120)

	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Catalog.Source {
	case SourceSQLite:
		if config.Catalog.DBPath == "" {
			return fmt.Errorf("catalog db path is required when source is 'sqlite'")
		}
	case SourceRemote:
		if config.Catalog.BaseURL == "" {
			return fmt.Errorf("catalog base URL is required when source is 'remote' (set MEDICOMPARE_CATALOG_BASE_URL)")
		}
	default:
		return fmt.Errorf("catalog source must be 'sqlite' or 'remote', got: %s", config.Catalog.Source)
	}

	if config.Catalog.LookupTimeout <= 0 {
		return fmt.Errorf("catalog lookup timeout must be positive, got: %s", config.Catalog.LookupTimeout)
	}

	if config.Matching.Debounce <= 0 {
		return fmt.Errorf("matching debounce must be positive, got: %s", config.Matching.Debounce)
	}

	if config.Matching.MinQueryLength < 1 {
		return fmt.Errorf("matching min query length must be at least 1, got: %d", config.Matching.MinQueryLength)
	}

	if config.Matching.SuggestionLimit < 1 {
		return fmt.Errorf("matching suggestion limit must be at least 1, got: %d", config.Matching.SuggestionLimit)
	}

	if config.Matching.BatchConcurrency < 1 {
		return fmt.Errorf("matching batch concurrency must be at least 1, got: %d", config.Matching.BatchConcurrency)
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("per-IP rate limit cannot be negative, got: %d", config.RateLimit.PerIP)
	}

	return nil
}
