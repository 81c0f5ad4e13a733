package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables,
// optionally overlaid with a YAML file named by INSPECTOR_CONFIG.
type Config struct {
	PostgresEnabled  bool   `yaml:"postgres_enabled"`
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     string `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	MaxConcurrency   int `yaml:"max_concurrency"`
	RateLimitMs      int `yaml:"rate_limit_ms"`
	MaxRetries       int `yaml:"max_retries"`
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`

	PlacesBaseURL string `yaml:"places_base_url"`
	SearchRadiusM int    `yaml:"search_radius_m"`

	SkipHeader bool   `yaml:"skip_header"`
	KeyMode    string `yaml:"key_mode"`

	CheckpointPath  string `yaml:"checkpoint_path"`
	CheckpointEvery int    `yaml:"checkpoint_every"`

	MetricsAddr string `yaml:"metrics_addr"`
	MergeMode   string `yaml:"merge_mode"`

	TopKeywords     int `yaml:"top_keywords"`
	TopReviews      int `yaml:"top_reviews"`
	MinReviewTokens int `yaml:"min_review_tokens"`

	LogLevel string `yaml:"log_level"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "inspector"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "inspector"),
		PostgresDB:       getEnv("POSTGRES_DB", "inspections"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 100),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelayMs: getEnvInt("RETRY_BASE_DELAY_MS", 500),
		RequestTimeoutMs: getEnvInt("REQUEST_TIMEOUT_MS", 10000),

		PlacesBaseURL: getEnv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
		SearchRadiusM: getEnvInt("SEARCH_RADIUS_M", 1000),

		SkipHeader: getEnvBool("SKIP_HEADER", true),
		KeyMode:    getEnv("KEY_MODE", "name"),

		CheckpointPath:  getEnv("CHECKPOINT_PATH", "./output/checkpoint.sqlite"),
		CheckpointEvery: getEnvInt("CHECKPOINT_EVERY", 100),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		MergeMode:   getEnv("MERGE_MODE", "union"),

		TopKeywords:     getEnvInt("TOP_KEYWORDS", 20),
		TopReviews:      getEnvInt("TOP_REVIEWS", 10),
		MinReviewTokens: getEnvInt("MIN_REVIEW_TOKENS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("INSPECTOR_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay replaces any field present in the YAML file at path.
func (c *Config) overlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.KeyMode {
	case "name", "inspection_id":
	default:
		return fmt.Errorf("config: KEY_MODE must be name or inspection_id, got %q", c.KeyMode)
	}
	switch c.MergeMode {
	case "union", "left":
	default:
		return fmt.Errorf("config: MERGE_MODE must be union or left, got %q", c.MergeMode)
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.CheckpointEvery < 1 {
		c.CheckpointEvery = 1
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
