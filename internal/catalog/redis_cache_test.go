package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"token-detector/internal/domain"
)

// setupRedis starts a Redis container and returns a connected client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, client.Ping(ctx).Err())

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisCache_PutGet(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewRedisCache(client, time.Hour)

	_, ok, err := cache.Get(ctx, "0x1")
	require.NoError(t, err)
	assert.False(t, ok)

	fetchedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	list := domain.TokenList{usdt: {Address: usdt, Symbol: "USDT", Decimals: 6, Occurrences: 10}}
	require.NoError(t, cache.Put(ctx, "0x01", CachedList{FetchedAt: fetchedAt, Data: list}))

	got, ok, err := cache.Get(ctx, "0x1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, list, got.Data)

	ttl, err := client.TTL(ctx, "token-detector:tokenlist:0x1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
