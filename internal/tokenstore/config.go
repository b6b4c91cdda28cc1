package tokenstore

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds the redis store configuration
type RedisConfig struct {
	// Redis connection settings
	Host     string
	Port     int
	Password string
	DB       int

	// KeyPrefix namespaces the token keys, e.g. "firenest:refresh:"
	KeyPrefix string
	// TTL expires saved tokens; 0 keeps them until deleted
	TTL time.Duration

	// Connection settings
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
}

// DefaultRedisConfig returns a configuration for a local redis
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:            "localhost",
		Port:            6379,
		KeyPrefix:       "firenest:refresh:",
		TTL:             30 * 24 * time.Hour,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        4,
	}
}

// NewRedisConfigFromEnv creates a RedisConfig from environment variables
func NewRedisConfigFromEnv() (*RedisConfig, error) {
	cfg := DefaultRedisConfig()

	port, err := strconv.Atoi(getEnvOrDefault("REDIS_PORT", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	ttl, err := parseDuration(getEnvOrDefault("TOKEN_STORE_TTL", cfg.TTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_STORE_TTL: %w", err)
	}

	cfg.Host = getEnvOrDefault("REDIS_HOST", cfg.Host)
	cfg.Port = port
	cfg.Password = os.Getenv("REDIS_PASSWORD")
	cfg.DB = db
	cfg.KeyPrefix = getEnvOrDefault("TOKEN_STORE_PREFIX", cfg.KeyPrefix)
	cfg.TTL = ttl
	return cfg, nil
}

// Address returns the Redis server address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) (time.Duration, error) {
	// Try parsing as a duration string (e.g., "1h30m")
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	// Try parsing as seconds
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
