package db

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_AppliesDefaults(t *testing.T) {
	client := NewRedisClient(RedisConfig{Port: 6380, PoolSize: 3})
	defer client.Close()

	def := DefaultRedisConfig()
	assert.Equal(t, 3, client.config.PoolSize)
	assert.Equal(t, def.DialTimeout, client.config.DialTimeout)
	assert.Equal(t, def.MinIdleConns, client.config.MinIdleConns)
	assert.Equal(t, "localhost:6380", client.Addr())
}

func TestRedisClient_PingAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, _ := strings.Cut(mr.Addr(), ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client := NewRedisClient(RedisConfig{Host: host, Port: port})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.GetClient().Set(ctx, "k", "v", 0).Err())
	assert.NotNil(t, client.PoolStats())

	mr.Close()
	err = client.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), mr.Addr())
}
