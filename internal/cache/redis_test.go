package cache

import (
	"context"
	"testing"
	"time"

	"docbulk/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, prefix string) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{Address: server.Addr(), Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, server
}

func TestRedisCacheGetSet(t *testing.T) {
	c, server := newTestCache(t, "docbulk")
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "doc", []byte("payload"), time.Minute))
	assert.True(t, server.Exists("docbulk:doc"))

	value, err := c.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)

	server.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "doc")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheGetMany(t *testing.T) {
	c, _ := newTestCache(t, "")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	found, err := c.GetMany(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "c": []byte("3")}, found)

	empty, err := c.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisCacheDelete(t *testing.T) {
	c, server := newTestCache(t, "p")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "b", "never-set"))
	require.NoError(t, c.Delete(ctx))

	assert.False(t, server.Exists("p:a"))
	assert.False(t, server.Exists("p:b"))
	assert.NoError(t, c.Ping(ctx))
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := NewRedisCache(config.RedisConfig{Address: addr})
	assert.Error(t, err)
}
