package main

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-collections/api/middleware"
	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/db"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/metrics"
	"github.com/angelmondragon/storefront-collections/pkg/migrate"
	"github.com/angelmondragon/storefront-collections/pkg/redis"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/angelmondragon/storefront-collections/pkg/storage/memory"
	"github.com/angelmondragon/storefront-collections/pkg/storage/sqlstore"
)

const jobPurgeDeviceStorage = "purge_device_storage"

// backend bundles whatever the configured storage driver provides.
type backend struct {
	scoper    storage.DeviceScoper
	limiter   middleware.RateLimitStore
	readiness map[string]storage.Pinger
	purge     func(ctx context.Context) (int64, error)
	closers   []func() error
}

func (b *backend) Close(ctx context.Context, logg *logger.Logger) {
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			logg.Error(ctx, "error closing storage backend", err)
		}
	}
}

func bootstrapStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, cfg.Storage.TTL, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		return &backend{
			scoper:    client,
			limiter:   client,
			readiness: map[string]storage.Pinger{"redis": client},
			closers:   []func() error{client.Close},
		}, nil

	case config.StorageDriverSQL:
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap database: %w", err)
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("run dev migrations: %w", err)
		}
		store := sqlstore.New(client, cfg.Storage.TTL)
		return &backend{
			scoper:    store,
			readiness: map[string]storage.Pinger{"database": store},
			purge:     store.PurgeExpired,
			closers:   []func() error{client.Close},
		}, nil

	case config.StorageDriverMemory:
		store := memory.New()
		return &backend{
			scoper:    store,
			readiness: map[string]storage.Pinger{"memory": store},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// runPurge drops expired device storage rows on every tick. Redis expires keys
// on its own, so only the SQL backend installs a purge func.
func runPurge(ctx context.Context, b *backend, interval time.Duration, jobs *metrics.JobMetrics, logg *logger.Logger) {
	if b.purge == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			purged, err := b.purge(ctx)
			jobs.Observe(jobPurgeDeviceStorage, time.Since(start), err)
			if err != nil {
				logg.Error(ctx, "storage.purge_failed", err)
				continue
			}
			if purged > 0 {
				logg.Info(logg.WithField(ctx, "purged", purged), "storage.purged_expired")
			}
		}
	}
}
