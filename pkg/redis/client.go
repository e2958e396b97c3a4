package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace    = "sf"
	devicePrefix    = "device"
	rateLimitPrefix = "rate_limit"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	GetEx(context.Context, string, time.Duration) *redis.StringCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the redis connection helpers needed by the collections service.
type Client struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
// ttl bounds how long an untouched guest collection survives.
func New(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw, ttl: ttl}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// IncrWithTTL bumps the counter at key, namespaced under sf:rate_limit, and
// starts its expiry on the first increment of a window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}
	key = c.counterKey(key)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if err := c.store.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

func (c *Client) counterKey(key string) string {
	return c.buildKey(rateLimitPrefix, key)
}

// DeviceKey returns the namespaced key holding one storage entry of a device.
func (c *Client) DeviceKey(deviceID, key string) string {
	return c.buildKey(devicePrefix, deviceID, key)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// ForDevice implements storage.DeviceScoper. Reads and writes both refresh the
// TTL, so only collections nobody has looked at expire.
func (c *Client) ForDevice(deviceID string) storage.KV {
	return &deviceStorage{client: c, deviceID: deviceID}
}

type deviceStorage struct {
	client   *Client
	deviceID string
}

func (d *deviceStorage) GetItem(ctx context.Context, key string) (string, error) {
	store := d.client.store
	if store == nil {
		return "", errNotInitialized
	}
	full := d.client.DeviceKey(d.deviceID, key)

	var cmd *redis.StringCmd
	if d.client.ttl > 0 {
		cmd = store.GetEx(ctx, full, d.client.ttl)
	} else {
		cmd = store.Get(ctx, full)
	}
	value, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	return value, err
}

func (d *deviceStorage) SetItem(ctx context.Context, key, value string) error {
	if d.client.store == nil {
		return errNotInitialized
	}
	return d.client.store.Set(ctx, d.client.DeviceKey(d.deviceID, key), value, d.client.ttl).Err()
}

func (d *deviceStorage) RemoveItem(ctx context.Context, key string) error {
	if d.client.store == nil {
		return errNotInitialized
	}
	return d.client.store.Del(ctx, d.client.DeviceKey(d.deviceID, key)).Err()
}

func (c *Client) buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
