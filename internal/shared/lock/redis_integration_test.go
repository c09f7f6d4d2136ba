//go:build integration

package lock

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

	"github.com/radieske/p2p-bet-exchange/internal/shared/cache"
)

// setupRedis sobe um Redis descartável; sem Docker o teste é pulado
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb, err := cache.ConnectRedis(fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedis_AcquireAndRelease(t *testing.T) {
	rdb := setupRedis(t)
	l := NewRedis(rdb)
	ctx := context.Background()
	key := BetKey("b1")

	token, ok, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "segunda aquisição precisa falhar")

	// token alheio não libera a trava
	released, err := l.Release(ctx, key, "someone-else")
	require.NoError(t, err)
	assert.False(t, released)
	got, err := rdb.Get(ctx, "lock:bet:b1").Result()
	require.NoError(t, err)
	assert.Equal(t, token, got)

	released, err = l.Release(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ExpiredTokenCannotReleaseNewHolder(t *testing.T) {
	rdb := setupRedis(t)
	l := NewRedis(rdb)
	ctx := context.Background()
	key := BetKey("b2")

	stale, ok, err := l.Acquire(ctx, key, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	var fresh string
	require.Eventually(t, func() bool {
		token, ok, err := l.Acquire(ctx, key, 5*time.Second)
		if err != nil || !ok {
			return false
		}
		fresh = token
		return true
	}, 2*time.Second, 20*time.Millisecond)

	released, err := l.Release(ctx, key, stale)
	require.NoError(t, err)
	assert.False(t, released)

	ttl, err := rdb.PTTL(ctx, "lock:bet:b2").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	released, err = l.Release(ctx, key, fresh)
	require.NoError(t, err)
	assert.True(t, released)
}
