//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	b, err := Open(ctx, config.StoreConfig{
		Driver: DriverRedis,
		Redis:  config.RedisConfig{URL: url, Namespace: "ratewatch-test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.Equal(t, DriverRedis, b.Driver())
	exerciseBackend(t, b)
}
