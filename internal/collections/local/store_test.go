package local

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-collections/internal/identity"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/angelmondragon/storefront-collections/pkg/storage/memory"
	"github.com/angelmondragon/storefront-collections/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *memory.Store, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	backend := memory.New()
	return New(backend.ForDevice("device-1"), "guest_cart", logg), backend, buf
}

func TestLoadMissingKeyIsEmpty(t *testing.T) {
	store, _, buf := newStore(t)
	items := store.Load(context.Background())
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Zero(t, buf.Len(), "missing data is not worth a log line")
}

func TestLoadMalformedDataIsEmptyAndLogged(t *testing.T) {
	store, backend, buf := newStore(t)
	require.NoError(t, backend.ForDevice("device-1").SetItem(context.Background(), "guest_cart", "{not json"))

	items := store.Load(context.Background())
	assert.Empty(t, items)
	assert.Contains(t, buf.String(), "local.load_failed")
	assert.Contains(t, buf.String(), `"storage_key":"guest_cart"`)
}

func TestSaveThenFreshLoadPreservesOrderAndIdentity(t *testing.T) {
	store, backend, _ := newStore(t)
	ctx := context.Background()
	price := decimal.RequireFromString("10.50")

	items := []types.Item{
		{EntryID: types.NewFlexID("e1"), ProductID: types.NewFlexID("sku-1"), Quantity: 1, Price: &price},
		{EntryID: types.NewFlexID("e2"), Product: &types.ProductRef{ID: types.NewFlexID("77")}, Quantity: 2},
		{EntryID: types.NewFlexID("e3"), SKU: types.NewFlexID("ABC"), Quantity: 3, Colors: []string{"red", "blue"}},
	}
	store.Save(ctx, items)

	reloaded := New(backend.ForDevice("device-1"), "guest_cart", nil).Load(ctx)
	require.Len(t, reloaded, len(items))
	for i := range items {
		assert.Equal(t, identity.CanonicalID(&items[i]), identity.CanonicalID(&reloaded[i]))
		assert.Equal(t, items[i].EntryID, reloaded[i].EntryID)
	}
	assert.True(t, reloaded[0].Price.Equal(price))
	assert.Equal(t, []string{"red", "blue"}, reloaded[2].Colors)
}

func TestSaveEmptyWritesEmptyArray(t *testing.T) {
	store, backend, _ := newStore(t)
	store.Save(context.Background(), nil)

	raw, ok := backend.Raw("device-1", "guest_cart")
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
}

func TestSaveSwallowsWriteFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	store := New(failingKV{}, "guest_wishlist", logg)

	assert.NotPanics(t, func() { store.Save(context.Background(), []types.Item{{ID: types.NewFlexID("1")}}) })
	assert.Contains(t, buf.String(), "local.save_failed")
	assert.Error(t, store.Persist(context.Background(), nil))
}

func TestAppendDeleteAndSetQuantity(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, types.Item{EntryID: types.NewFlexID("a"), ProductID: types.NewFlexID("1"), Quantity: 1})
	require.NoError(t, err)
	items, err := store.Append(ctx, types.Item{EntryID: types.NewFlexID("b"), ProductID: types.NewFlexID("2"), Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	updated, found, err := store.SetQuantity(ctx, "b", 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5, updated.Quantity)

	_, found, err = store.SetQuantity(ctx, "missing", 5)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	remaining := store.Load(ctx)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].EntryID.String())
	assert.Equal(t, 5, remaining[0].Quantity)
}

func TestAppendRecoversFromMalformedData(t *testing.T) {
	store, backend, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, backend.ForDevice("device-1").SetItem(ctx, "guest_cart", "42"))

	items, err := store.Append(ctx, types.Item{EntryID: types.NewFlexID("a")})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRemoveEntryHelpers(t *testing.T) {
	items := []types.Item{{EntryID: types.NewFlexID("1")}, {EntryID: types.NewFlexID("2")}, {EntryID: types.NewFlexID("3")}}

	out, ok := RemoveEntry(items, "2")
	require.True(t, ok)
	require.Len(t, out, 2)
	assert.Equal(t, "3", out[1].EntryID.String())
	assert.Len(t, items, 3, "input slice must not be modified")

	_, ok = RemoveEntry(items, "")
	assert.False(t, ok)
	assert.Equal(t, -1, IndexOfEntry(nil, "1"))
}

type failingKV struct{}

func (failingKV) GetItem(context.Context, string) (string, error) { return "", storage.ErrNotFound }
func (failingKV) SetItem(context.Context, string, string) error    { return errors.New("quota exceeded") }
func (failingKV) RemoveItem(context.Context, string) error         { return nil }
