// Package config provides configuration for the Kore memory system.
// Settings layer as: defaults, then an optional YAML file, then environment
// variables with the KORE_ prefix (highest precedence). A .env file in the
// working directory, when present, is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the Kore application.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Log         LogConfig         `yaml:"log"`
}

// StorageConfig selects and parameterises the relational backend.
type StorageConfig struct {
	// Engine is "sqlite" or "postgres".
	Engine string `yaml:"engine"`
	// Path is the SQLite database file (sqlite engine only).
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string (postgres engine only).
	DSN string `yaml:"dsn"`
}

// EmbeddingConfig parameterises the Ollama-compatible embedding backend.
type EmbeddingConfig struct {
	// Enabled turns semantic retrieval on. When off, everything runs
	// lexical-only and no embedding backend is contacted.
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// TimeoutSeconds bounds each embedding request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// RequestsPerSecond rate-limits calls to the backend.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// MaintenanceConfig tunes the offline passes.
type MaintenanceConfig struct {
	// DecayInterval between periodic decay passes in daemon contexts.
	DecayInterval time.Duration `yaml:"decay_interval"`
	// CompressOnDecay also runs compression after each scheduled decay pass.
	CompressOnDecay bool `yaml:"compress_on_decay"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: "sqlite",
			Path:   "./kore.db",
		},
		Embedding: EmbeddingConfig{
			Enabled:           true,
			BaseURL:           "http://localhost:11434",
			Model:             "nomic-embed-text",
			TimeoutSeconds:    10,
			RequestsPerSecond: 20,
		},
		Maintenance: MaintenanceConfig{
			DecayInterval:   time.Hour,
			CompressOnDecay: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips the file layer. Environment variables override everything.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Engine = getEnv("KORE_STORAGE_ENGINE", c.Storage.Engine)
	c.Storage.Path = getEnv("KORE_DB_PATH", c.Storage.Path)
	c.Storage.DSN = getEnv("KORE_POSTGRES_DSN", c.Storage.DSN)

	c.Embedding.Enabled = getEnvBool("KORE_EMBEDDING_ENABLED", c.Embedding.Enabled)
	c.Embedding.BaseURL = getEnv("KORE_EMBEDDING_URL", c.Embedding.BaseURL)
	c.Embedding.Model = getEnv("KORE_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.TimeoutSeconds = getEnvInt("KORE_EMBEDDING_TIMEOUT_SECONDS", c.Embedding.TimeoutSeconds)

	if d := getEnvDuration("KORE_DECAY_INTERVAL", 0); d > 0 {
		c.Maintenance.DecayInterval = d
	}
	c.Maintenance.CompressOnDecay = getEnvBool("KORE_COMPRESS_ON_DECAY", c.Maintenance.CompressOnDecay)

	c.Log.Level = getEnv("KORE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("KORE_LOG_FORMAT", c.Log.Format)
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: sqlite engine requires a database path")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: postgres engine requires a DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable; an unset or
// unparseable value yields the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool recognises true/1/yes and false/0/no, case-insensitive.
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
		return true
	case "false", "0", "no", "False", "FALSE", "No", "NO":
		return false
	}
	return defaultValue
}

// getEnvDuration parses a Go duration string such as "30m" or "2h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
