package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps refresh tokens in redis, one key per user, so several
// processes can share them
type RedisStore struct {
	client *redis.Client
	config *RedisConfig
}

// NewRedisStore connects to the redis described by config
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
	})
	return newRedisStore(client, config)
}

// NewRedisStoreFromURL connects to a redis:// URL with the default key
// prefix and TTL
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return newRedisStore(redis.NewClient(opts), DefaultRedisConfig())
}

func newRedisStore(client *redis.Client, config *RedisConfig) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		config: config,
	}, nil
}

func (r *RedisStore) key(userID string) string {
	return r.config.KeyPrefix + userID
}

// Load returns the refresh token saved for userID
func (r *RedisStore) Load(ctx context.Context, userID string) (string, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", NewStoreError("failed to load token", true).WithError(err)
	}
	return val, nil
}

// Save stores refreshToken for userID with the configured TTL
func (r *RedisStore) Save(ctx context.Context, userID, refreshToken string) error {
	if err := r.client.Set(ctx, r.key(userID), refreshToken, r.config.TTL).Err(); err != nil {
		return NewStoreError("failed to save token", true).WithError(err)
	}
	return nil
}

// Delete forgets userID
func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return NewStoreError("failed to delete token", true).WithError(err)
	}
	return nil
}

// TTL returns the remaining lifetime of the token saved for userID; 0 when
// it does not expire
func (r *RedisStore) TTL(ctx context.Context, userID string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(userID)).Result()
	if err != nil {
		return 0, NewStoreError("failed to get TTL", true).WithError(err)
	}

	// Key doesn't exist
	if ttl == -2 {
		return 0, ErrNotFound
	}

	// Key exists but has no TTL
	if ttl == -1 {
		return 0, nil
	}

	return ttl, nil
}

// Ping checks if redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("ping failed", false).WithError(err)
	}
	return nil
}

// Close closes the redis connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
