package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openRedisForIntegrationTest(t *testing.T) *RedisStore {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("STOREFRONT_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}

	store, err := OpenRedis(context.Background(), addr, "", 15)
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_Integration(t *testing.T) {
	store := openRedisForIntegrationTest(t)
	ctx := context.Background()
	key := "storefront:test:" + t.Name()
	t.Cleanup(func() { _ = store.Delete(context.Background(), key) })

	_, err := store.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, store.Set(ctx, key, []byte("v"), time.Minute))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v", string(got))

	ok, err := store.SetNX(ctx, key, []byte("other"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := OpenRedis(ctx, "127.0.0.1:1", "", 0)
	require.Error(t, err)
}
