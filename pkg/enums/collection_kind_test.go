package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionKindKeys(t *testing.T) {
	assert.Equal(t, "guest_cart", CollectionCart.StorageKey())
	assert.Equal(t, "guest_wishlist", CollectionWishlist.StorageKey())
	assert.Equal(t, "guest_compare", CollectionCompare.StorageKey())

	assert.Equal(t, "/cart", CollectionCart.ResourcePath())
	assert.Equal(t, "/compare", CollectionCompare.ResourcePath())

	assert.Equal(t, "comparison", CollectionCompare.Noun())
	assert.Equal(t, "wishlist", CollectionWishlist.Noun())

	assert.True(t, CollectionCart.SupportsQuantity())
	assert.False(t, CollectionWishlist.SupportsQuantity())
	assert.True(t, CollectionCompare.HasCapacityLimit())
	assert.False(t, CollectionCart.HasCapacityLimit())
}

func TestParseCollectionKind(t *testing.T) {
	kind, err := ParseCollectionKind(" Wishlist ")
	require.NoError(t, err)
	assert.Equal(t, CollectionWishlist, kind)

	_, err = ParseCollectionKind("favorites")
	assert.Error(t, err)
	assert.False(t, CollectionKind("favorites").IsValid())
	assert.Len(t, CollectionKinds(), 3)
}
