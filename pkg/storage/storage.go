// Package storage defines the key-value contract behind guest ("on-device")
// collection persistence. Backends live in sub-packages and in pkg/redis.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetItem when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// KV is a string key-value store without transactional guarantees, mirroring the
// browser storage API the storefront originally persisted to.
type KV interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// DeviceScoper hands out a KV namespaced to one device.
type DeviceScoper interface {
	ForDevice(deviceID string) KV
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
