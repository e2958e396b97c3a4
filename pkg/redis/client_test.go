package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/redis/go-redis/v9"
)

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, "device:collections:abc", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != want {
			t.Fatalf("expected counter %d got %d", want, count)
		}
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected a single expire, got %d", len(mock.expireCalls))
	}
	if got := mock.expireCalls[0]; got.key != "sf:rate_limit:device:collections:abc" || got.ttl != time.Minute {
		t.Fatalf("unexpected expire call %+v", got)
	}
}

func TestDeviceStorageReadRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock, ttl: time.Hour}
	kv := client.ForDevice("device-1")

	if err := kv.SetItem(ctx, "guest_compare", "[]"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mock.ttls["sf:device:device-1:guest_compare"] = time.Minute
	if _, err := kv.GetItem(ctx, "guest_compare"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got := mock.ttls["sf:device:device-1:guest_compare"]; got != time.Hour {
		t.Fatalf("expected read to restore ttl, got %v", got)
	}
}

func TestDeviceStorageLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock, ttl: 24 * time.Hour}
	kv := client.ForDevice("device-1")

	if _, err := kv.GetItem(ctx, "guest_cart"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := kv.SetItem(ctx, "guest_cart", `[{"product_id":"1"}]`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := mock.data["sf:device:device-1:guest_cart"]; got != `[{"product_id":"1"}]` {
		t.Fatalf("unexpected stored value %q", got)
	}
	if got := mock.ttls["sf:device:device-1:guest_cart"]; got != 24*time.Hour {
		t.Fatalf("expected ttl to be applied, got %v", got)
	}

	value, err := kv.GetItem(ctx, "guest_cart")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `[{"product_id":"1"}]` {
		t.Fatalf("unexpected value %q", value)
	}

	other := client.ForDevice("device-2")
	if _, err := other.GetItem(ctx, "guest_cart"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("devices must not share storage, got %v", err)
	}

	if err := kv.RemoveItem(ctx, "guest_cart"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := kv.GetItem(ctx, "guest_cart"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail without a connection")
	}
	if _, err := client.ForDevice("d").GetItem(context.Background(), "k"); err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected initialization error, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.counterKey("scope"); got != "sf:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.DeviceKey("abc", "guest_wishlist"); got != "sf:device:abc:guest_wishlist" {
		t.Fatalf("unexpected device key %s", got)
	}
	if got := client.DeviceKey("", "guest_wishlist"); got != "sf:device:guest_wishlist" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data        map[string]string
	ttls        map[string]time.Duration
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	m.ttls[key] = expiration
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
