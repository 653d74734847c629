package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hyperengineering/csab/internal/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`

	// DevMode (CSAB_DEV_MODE=true) skips the OpenAI key check.
	DevMode bool `yaml:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// DatabaseConfig contains database settings. Path is used by the sqlite
// driver and DSN by the postgres driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"-"` // env-only, carries credentials
}

// EmbeddingConfig contains embedding service settings. BaseURL overrides the
// OpenAI endpoint or names the Ollama server.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"-"` // env-only, never in YAML
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// ChunkingConfig sizes the chunks produced from uploaded content.
type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	Overlap   int `yaml:"overlap"`
}

// RateLimitConfig limits /data requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Variables from the .env file are set first without overriding the
// process environment.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("CSAB_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := newDefaults()

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, getEnv("CSAB_CONFIG_PATH", "config/csab.yaml")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(5 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxUploadBytes:  10 << 20,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/csab.db",
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    "text-embedding-3-small",
		},
		Chunking: ChunkingConfig{
			MaxTokens: 500,
			Overlap:   50,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadEnvFile sets variables from a dotenv file. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("CSAB_PORT", &cfg.Server.Port)
	envDuration("CSAB_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CSAB_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CSAB_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("CSAB_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("CSAB_TRUST_PROXY_HEADERS"); v != "" {
		cfg.Server.TrustProxyHeaders = v == "true" || v == "1"
	}

	// Database
	envString("CSAB_DB_DRIVER", &cfg.Database.Driver)
	envString("CSAB_DB_PATH", &cfg.Database.Path)
	envString("CSAB_DB_DSN", &cfg.Database.DSN)

	// Embedding (OPENAI_API_KEY is industry convention)
	envString("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	envString("CSAB_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	envString("CSAB_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envString("CSAB_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)

	// Chunking
	envInt("CSAB_CHUNK_MAX_TOKENS", &cfg.Chunking.MaxTokens)
	envInt("CSAB_CHUNK_OVERLAP", &cfg.Chunking.Overlap)

	// Rate limit
	if v := os.Getenv("CSAB_RATE_LIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = v == "true" || v == "1"
	}
	envInt("CSAB_RATE_LIMIT_RPM", &cfg.RateLimit.RequestsPerMinute)
	envInt("CSAB_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)

	// Log
	envString("CSAB_LOG_LEVEL", &cfg.Log.Level)
	envString("CSAB_LOG_FORMAT", &cfg.Log.Format)

	cfg.DevMode = os.Getenv("CSAB_DEV_MODE") == "true"
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks the configuration for consistency. Embedding credentials
// are checked separately by ValidateEmbedding.
func (c *Config) validate() error {
	v := &validation.Collector{}
	v.Add(validation.ValidateEnum("database.driver", c.Database.Driver, []string{DriverSQLite, DriverPostgres}))
	v.Add(validation.ValidateEnum("embedding.provider", c.Embedding.Provider, []string{ProviderOpenAI, ProviderOllama}))
	v.Add(validation.ValidateEnum("log.format", c.Log.Format, []string{"json", "text"}))
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return errors.New("CSAB_DB_DSN is required for the postgres driver")
	}
	if c.Chunking.MaxTokens <= 0 {
		return errors.New("chunking.max_tokens must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxTokens {
		return errors.New("chunking.overlap must be in [0, max_tokens)")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate_limit.requests_per_minute and rate_limit.burst must be positive")
	}
	return nil
}

// ValidateEmbedding checks the settings needed to build an embedder. Only
// commands that embed call it, so admin and load commands need no API key.
func (c *Config) ValidateEmbedding() error {
	if c.DevMode {
		return nil
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
