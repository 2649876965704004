package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the visit summary service
type Config struct {
	// Server configuration
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  string        `yaml:"allowed_origins"`

	// Abuse guard, 0 disables it
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// OpenAI configuration
	OpenAIAPIKey         string        `yaml:"-"`
	OpenAIBaseURL        string        `yaml:"openai_base_url"`
	OpenAIModel          string        `yaml:"openai_model"`
	OpenAIConnectTimeout time.Duration `yaml:"openai_connect_timeout"`
	StreamBuffer         int           `yaml:"stream_buffer"`

	// Identity provider
	ClerkJWKSURL string `yaml:"clerk_jwks_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                 "8000",
		ShutdownTimeout:      30 * time.Second,
		AllowedOrigins:       "*",
		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIModel:          "gpt-5-nano",
		OpenAIConnectTimeout: 30 * time.Second,
		StreamBuffer:         16,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load loads configuration from the optional CONFIG_FILE and then from
// environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.RateLimitPerMinute = getIntEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIConnectTimeout = getDurationEnv("OPENAI_CONNECT_TIMEOUT", cfg.OpenAIConnectTimeout)
	cfg.StreamBuffer = getIntEnv("STREAM_BUFFER", cfg.StreamBuffer)
	cfg.ClerkJWKSURL = getEnv("CLERK_JWKS_URL", cfg.ClerkJWKSURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if c.ClerkJWKSURL == "" {
		return errors.New("CLERK_JWKS_URL environment variable is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("STREAM_BUFFER must be positive, got %d", c.StreamBuffer)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
