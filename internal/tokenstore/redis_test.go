package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startRedis runs a throwaway redis container. It skips in -short mode and
// when no container runtime is available.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return uri
}

func TestRedisStore(t *testing.T) {
	uri := startRedis(t)
	ctx := context.Background()

	store, err := NewRedisStoreFromURL(uri)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	_, err = store.Load(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "alice", "r1"))
	token, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "r1", token)

	ttl, err := store.TTL(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, DefaultRedisConfig().TTL.Seconds(), ttl.Seconds(), 5)

	require.NoError(t, store.Delete(ctx, "alice"))
	require.NoError(t, store.Delete(ctx, "alice"))
	_, err = store.TTL(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_NoExpiry(t *testing.T) {
	uri := startRedis(t)
	ctx := context.Background()

	store, err := NewRedisStoreFromURL(uri)
	require.NoError(t, err)
	defer store.Close()
	store.config = &RedisConfig{KeyPrefix: "test:"}

	require.NoError(t, store.Save(ctx, "bob", "r2"))
	ttl, err := store.TTL(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)

	val, err := store.client.Get(ctx, "test:bob").Result()
	require.NoError(t, err)
	assert.Equal(t, "r2", val)
}

func TestRedisStore_Unreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Port = 1
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1

	_, err := NewRedisStore(cfg)
	assert.Error(t, err)
}

func TestNewRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("TOKEN_STORE_TTL", "3600")
	t.Setenv("TOKEN_STORE_PREFIX", "app:")

	cfg, err := NewRedisConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.Address())
	assert.Equal(t, time.Hour, cfg.TTL)
	assert.Equal(t, "app:", cfg.KeyPrefix)

	t.Setenv("REDIS_PORT", "many")
	_, err = NewRedisConfigFromEnv()
	assert.Error(t, err)
}
