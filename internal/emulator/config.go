package emulator

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the emulator configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Identity configuration
	ProjectID     string // reported by the securetoken endpoint
	APIKey        string // required by the user sign-in endpoints when set
	SigningSecret string // HMAC key of issued tokens
	TokenTTL      int    // seconds
	RequireAuth   bool   // reject document requests without a valid bearer token

	// RateLimit caps requests per minute per client IP; 0 disables it.
	// Exceeding it answers 429 RESOURCE_EXHAUSTED, which clients retry.
	RateLimit int

	RequestTimeout  int
	ShutdownTimeout int

	// Telemetry configuration
	TelemetryEnabled bool
	MetricsPath      string
}

// DefaultConfig returns the configuration used when no environment is set
func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ProjectID:        "firenest-emulator",
		SigningSecret:    "firenest-emulator-secret",
		TokenTTL:         3600,
		RequireAuth:      true,
		RequestTimeout:   30,
		ShutdownTimeout:  10,
		TelemetryEnabled: true,
		MetricsPath:      "/metrics",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key  string
		dest *int
	}{
		{"PORT", &cfg.Port},
		{"TOKEN_TTL", &cfg.TokenTTL},
		{"RATE_LIMIT", &cfg.RateLimit},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, i := range ints {
		value, err := strconv.Atoi(getEnvOrDefault(i.key, strconv.Itoa(*i.dest)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dest = value
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.ProjectID = getEnvOrDefault("EMULATOR_PROJECT_ID", cfg.ProjectID)
	cfg.APIKey = os.Getenv("EMULATOR_API_KEY")
	cfg.SigningSecret = getEnvOrDefault("EMULATOR_SIGNING_SECRET", cfg.SigningSecret)
	cfg.RequireAuth = getEnvOrDefault("REQUIRE_AUTH", "true") == "true"
	cfg.TelemetryEnabled = getEnvOrDefault("TELEMETRY_ENABLED", "true") == "true"
	cfg.MetricsPath = getEnvOrDefault("METRICS_PATH", cfg.MetricsPath)

	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_TTL: must be positive")
	}
	return cfg, nil
}

// TokenLifetime returns TokenTTL as a duration
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
