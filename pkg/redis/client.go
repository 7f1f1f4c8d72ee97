package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get and GetDel for a missing key.
var ErrNotFound = errors.New("key not found")

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps go-redis with logging. Connect must be called before use.
type Client struct {
	rdb    *redis.Client
	addr   string
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		addr:   cfg.Addr,
		logger: logger,
	}
}

// Connect verifies the server is reachable.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", c.addr, err)
	}
	c.logger.WithContext(ctx).Infof("Connected to Redis at %s", c.addr)
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// GetDel reads and removes key in one round trip.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// SetXX overwrites key only when it exists, keeping its TTL.
func (c *Client) SetXX(ctx context.Context, key string, value any) (bool, error) {
	res, err := c.rdb.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res == "OK", nil
}

func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// TTL returns the remaining lifetime of key; negative values follow Redis
// (-1 no expiry, -2 missing key).
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}
