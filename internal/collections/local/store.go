// Package local persists guest collections to device storage.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/angelmondragon/storefront-collections/pkg/types"
)

// ErrMalformed marks stored data that could not be decoded.
var ErrMalformed = errors.New("malformed local collection data")

// Store reads and writes one collection list under a fixed key.
type Store struct {
	kv   storage.KV
	key  string
	logg *logger.Logger
}

// New binds a store to kv under key.
func New(kv storage.KV, key string, logg *logger.Logger) *Store {
	return &Store{kv: kv, key: key, logg: logg}
}

// Key returns the storage key the list lives under.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted list. Missing, unreadable and malformed data all
// yield an empty list; the latter two are logged.
func (s *Store) Load(ctx context.Context) []types.Item {
	items, err := s.read(ctx)
	if err != nil {
		s.warn(ctx, "local.load_failed", err)
		return []types.Item{}
	}
	return items
}

func (s *Store) read(ctx context.Context) ([]types.Item, error) {
	raw, err := s.kv.GetItem(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []types.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if raw == "" {
		return []types.Item{}, nil
	}

	var items []types.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, s.key, err)
	}
	if items == nil {
		items = []types.Item{}
	}
	return items, nil
}

// Save writes the full list. Failures are logged and swallowed.
func (s *Store) Save(ctx context.Context, items []types.Item) {
	if err := s.Persist(ctx, items); err != nil {
		s.warn(ctx, "local.save_failed", err)
	}
}

// Persist writes the full list and reports failures, for callers whose
// correctness depends on the write landing.
func (s *Store) Persist(ctx context.Context, items []types.Item) error {
	if items == nil {
		items = []types.Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.kv.SetItem(ctx, s.key, string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// Append loads the stored list, appends item and persists the result.
func (s *Store) Append(ctx context.Context, item types.Item) ([]types.Item, error) {
	items, err := s.read(ctx)
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			return nil, err
		}
		s.warn(ctx, "local.load_failed", err)
		items = []types.Item{}
	}
	items = append(items, item)
	if err := s.Persist(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes the entry with entryID from the stored list. found is false
// when no stored entry carries that id.
func (s *Store) Delete(ctx context.Context, entryID string) (found bool, err error) {
	items, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	next, found := RemoveEntry(items, entryID)
	if !found {
		return false, nil
	}
	return true, s.Persist(ctx, next)
}

// SetQuantity updates the quantity of a stored entry. found is false when no
// stored entry carries entryID.
func (s *Store) SetQuantity(ctx context.Context, entryID string, quantity int) (item types.Item, found bool, err error) {
	items, err := s.read(ctx)
	if err != nil {
		return types.Item{}, false, err
	}
	idx := IndexOfEntry(items, entryID)
	if idx < 0 {
		return types.Item{}, false, nil
	}
	items[idx].Quantity = quantity
	if err := s.Persist(ctx, items); err != nil {
		return types.Item{}, true, err
	}
	return items[idx], true, nil
}

// IndexOfEntry returns the position of the entry with entryID, or -1.
func IndexOfEntry(items []types.Item, entryID string) int {
	if entryID == "" {
		return -1
	}
	for i := range items {
		if items[i].EntryID.Valid && items[i].EntryID.Value == entryID {
			return i
		}
	}
	return -1
}

// RemoveEntry returns items without the entry carrying entryID, preserving order.
func RemoveEntry(items []types.Item, entryID string) ([]types.Item, bool) {
	idx := IndexOfEntry(items, entryID)
	if idx < 0 {
		return items, false
	}
	out := make([]types.Item, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...), true
}

func (s *Store) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"storage_key": s.key, "error": err.Error()})
	s.logg.Warn(ctx, msg)
}
