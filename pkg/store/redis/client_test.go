package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios/lifecycle/pkg/config"
)

func TestOptionsSingleNodeUsesFirstAddress(t *testing.T) {
	opts, err := Options(&config.RedisConfig{
		Addresses: []string{"redis-0:6379", "redis-1:6379"},
		DB:        2,
		PoolSize:  8,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"redis-0:6379"}, opts.Addrs)
	assert.Equal(t, ClientName, opts.ClientName)
	assert.Equal(t, 2, opts.Simple().DB)
	assert.True(t, opts.ContextTimeoutEnabled)
}

func TestOptionsClusterKeepsEverySeed(t *testing.T) {
	opts, err := Options(&config.RedisConfig{
		Addresses:   []string{"redis-0:6379", "redis-1:6379"},
		ClusterMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"redis-0:6379", "redis-1:6379"}, opts.Cluster().Addrs)
}

func TestNewClientRequiresAddresses(t *testing.T) {
	_, err := NewClient(context.Background(), &config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewClient(ctx, &config.RedisConfig{Addresses: []string{"127.0.0.1:1"}})
	assert.Error(t, err)
}
