package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helios/lifecycle/pkg/config"
)

// ClientName is sent with CLIENT SETNAME so operators can tell scheduler
// connections apart in CLIENT LIST.
const ClientName = "helios-lifecycle"

// Client wraps the connection used for status events.
type Client struct {
	rdb redis.UniversalClient
}

// Options translates cfg into go-redis options. Without cluster mode only the
// first address is used.
func Options(cfg *config.RedisConfig) (*redis.UniversalOptions, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("redis addresses are not configured")
	}
	opts := &redis.UniversalOptions{
		Addrs:                 cfg.Addresses,
		ClientName:            ClientName,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              cfg.PoolSize,
		DialTimeout:           2 * time.Second,
		WriteTimeout:          time.Second,
		ContextTimeoutEnabled: true,
	}
	if !cfg.ClusterMode {
		opts.Addrs = cfg.Addresses[:1]
	}
	return opts, nil
}

// NewClient connects and pings within ctx; the client is closed again when
// the ping fails.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(opts.Cluster())
	} else {
		rdb = redis.NewClient(opts.Simple())
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %v: %w", opts.Addrs, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
