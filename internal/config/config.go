// Package config provides unified configuration loading for the flyer extractor.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the flyer extractor.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Scraper       ScraperConfig       `yaml:"scraper"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`

	// Extraction endpoints share one token bucket; 0 disables the limit.
	ExtractRatePerMinute int `yaml:"extract_rate_per_minute"`
	ExtractBurst         int `yaml:"extract_burst"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// GeminiConfig holds the vision service settings.
type GeminiConfig struct {
	APIKeys         []string      `yaml:"api_keys"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	TopK            int           `yaml:"top_k"`
	TopP            float64       `yaml:"top_p"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
}

// ExtractionConfig holds the per-job pipeline settings.
type ExtractionConfig struct {
	RenderScale     float64       `yaml:"render_scale"`
	MaxImageSide    int           `yaml:"max_image_side"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	PageDelay       time.Duration `yaml:"page_delay"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffStep     time.Duration `yaml:"backoff_step"`
	BackoffCap      time.Duration `yaml:"backoff_cap"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	TempRoot        string        `yaml:"temp_root"`
	ImagesDir       string        `yaml:"images_dir"`
	ResultsDir      string        `yaml:"results_dir"`
	DefaultRetailer string        `yaml:"default_retailer"`
}

// ScraperConfig holds flyer index scraping settings.
type ScraperConfig struct {
	IndexURL  string        `yaml:"index_url"`
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Minute, // /extract is synchronous
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},

			ExtractRatePerMinute: 6,
			ExtractBurst:         2,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "flyers.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Gemini: GeminiConfig{
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Model:           "gemini-2.5-flash",
			Timeout:         45 * time.Second,
			Temperature:     0.1,
			TopK:            1,
			TopP:            1,
			MaxOutputTokens: 4096,
		},
		Extraction: ExtractionConfig{
			RenderScale:     2.0,
			MaxImageSide:    1024,
			JPEGQuality:     85,
			PageDelay:       5 * time.Second,
			MaxAttempts:     3,
			BackoffStep:     5 * time.Second,
			BackoffCap:      30 * time.Second,
			DownloadTimeout: 30 * time.Second,
			ImagesDir:       "multi_ai_product_images",
			ResultsDir:      "results",
			DefaultRetailer: "Supermercati Deco Arena",
		},
		Scraper: ScraperConfig{
			IndexURL:  "https://supermercatideco.gruppoarena.it/volantini/",
			BaseURL:   "https://supermercatideco.gruppoarena.it",
			UserAgent: "Mozilla/5.0",
			Timeout:   15 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "flyer-extractor",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ExtractRatePerMinute < 0 || c.Server.ExtractBurst < 0 {
		return fmt.Errorf("extract rate limit must not be negative")
	}

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Extraction.RenderScale <= 0 {
		return fmt.Errorf("render_scale must be positive")
	}

	if c.Extraction.JPEGQuality < 1 || c.Extraction.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Extraction.JPEGQuality)
	}

	if c.Extraction.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	return nil
}

// HasAPIKeys reports whether at least one vision service key is configured.
func (c *Config) HasAPIKeys() bool {
	return len(c.Gemini.APIKeys) > 0
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.Postgres.DSN
	}
	return c.Database.SQLite.Path
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("USE_DATABASE"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil && !on {
			cfg.Database.Driver = "memory"
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	// Keys are collected in order: explicit list first, then the numbered pair.
	var keys []string
	if v := os.Getenv("GEMINI_API_KEYS"); v != "" {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	for _, name := range []string{"GEMINI_API_KEY", "GEMINI_API_KEY_2"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			keys = appendUnique(keys, v)
		}
	}
	if len(keys) > 0 {
		cfg.Gemini.APIKeys = keys
	}

	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}

	if v := os.Getenv("PAGE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Extraction.PageDelay = d
		}
	}

	if v := os.Getenv("IMAGES_DIR"); v != "" {
		cfg.Extraction.ImagesDir = v
	}

	if v := os.Getenv("RESULTS_DIR"); v != "" {
		cfg.Extraction.ResultsDir = v
	}

	if v := os.Getenv("FLYER_INDEX_URL"); v != "" {
		cfg.Scraper.IndexURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
