// Package redis holds the Redis client and the distributed lock that
// serializes cluster rebuilds across replicas.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a connected go-redis client. Lock operations report their
// latency to the redis metrics.
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient dials Redis and fails fast when it cannot be pinged, so startup
// can retry it like any other dependency.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	})

	client := &Client{rdb: rdb, logger: logger}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.addr(), err)
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"addr": cfg.addr(),
		"db":   cfg.DB,
	}).Info("connected to redis")

	return client, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return c.rdb.Ping(ctx).Err()
}

func observe(operation string, start time.Time) {
	metrics.RedisOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
