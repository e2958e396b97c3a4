// Package memory provides an in-process storage backend for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/angelmondragon/storefront-collections/pkg/storage"
)

// Store keeps values in a map keyed by device and key.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[string]string)}
}

// ForDevice implements storage.DeviceScoper.
func (s *Store) ForDevice(deviceID string) storage.KV {
	return &deviceKV{store: s, device: deviceID}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Raw returns the stored value for a device/key pair, for assertions in tests.
func (s *Store) Raw(deviceID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[deviceID][key]
	return v, ok
}

type deviceKV struct {
	store  *Store
	device string
}

func (d *deviceKV) GetItem(_ context.Context, key string) (string, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	v, ok := d.store.data[d.device][key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (d *deviceKV) SetItem(_ context.Context, key, value string) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	bucket, ok := d.store.data[d.device]
	if !ok {
		bucket = make(map[string]string)
		d.store.data[d.device] = bucket
	}
	bucket[key] = value
	return nil
}

func (d *deviceKV) RemoveItem(_ context.Context, key string) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	delete(d.store.data[d.device], key)
	return nil
}
