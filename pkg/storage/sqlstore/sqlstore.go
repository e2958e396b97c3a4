// Package sqlstore persists device storage in the device_storage table.
package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/db"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry maps one row of device_storage.
type Entry struct {
	DeviceID   string     `gorm:"column:device_id;primaryKey"`
	StorageKey string     `gorm:"column:storage_key;primaryKey"`
	Value      string     `gorm:"column:value;not null"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
}

func (Entry) TableName() string { return "device_storage" }

// Store is a storage.DeviceScoper backed by SQL.
type Store struct {
	client *db.Client
	ttl    time.Duration
	now    func() time.Time
}

// New builds a store. A zero ttl keeps rows forever.
func New(client *db.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// ForDevice implements storage.DeviceScoper.
func (s *Store) ForDevice(deviceID string) storage.KV {
	return &deviceKV{store: s, deviceID: deviceID}
}

// Ping implements storage.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// PurgeExpired deletes rows whose TTL has elapsed and reports how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.client.DB().WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&Entry{})
	return res.RowsAffected, res.Error
}

type deviceKV struct {
	store    *Store
	deviceID string
}

// GetItem returns a live value and, when a TTL is configured, pushes its
// expiry forward in the same transaction so read-only guests keep their data.
func (d *deviceKV) GetItem(ctx context.Context, key string) (string, error) {
	now := d.store.now().UTC()
	var entry Entry
	err := d.store.client.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Where("device_id = ? AND storage_key = ?", d.deviceID, key).
			Where("expires_at IS NULL OR expires_at > ?", now).
			Take(&entry).Error
		if err != nil || d.store.ttl <= 0 {
			return err
		}
		return tx.Model(&Entry{}).
			Where("device_id = ? AND storage_key = ?", d.deviceID, key).
			Update("expires_at", now.Add(d.store.ttl)).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (d *deviceKV) SetItem(ctx context.Context, key, value string) error {
	now := d.store.now().UTC()
	entry := Entry{
		DeviceID:   d.deviceID,
		StorageKey: key,
		Value:      value,
		UpdatedAt:  now,
	}
	if d.store.ttl > 0 {
		expires := now.Add(d.store.ttl)
		entry.ExpiresAt = &expires
	}
	return d.store.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "expires_at"}),
		}).
		Create(&entry).Error
}

func (d *deviceKV) RemoveItem(ctx context.Context, key string) error {
	return d.store.client.DB().WithContext(ctx).
		Where("device_id = ? AND storage_key = ?", d.deviceID, key).
		Delete(&Entry{}).Error
}
