package enums

import (
	"fmt"
	"strings"
)

// CollectionKind names one of the user-facing product collections.
type CollectionKind string

const (
	CollectionCart     CollectionKind = "cart"
	CollectionWishlist CollectionKind = "wishlist"
	CollectionCompare  CollectionKind = "compare"
)

var validCollectionKinds = []CollectionKind{
	CollectionCart,
	CollectionWishlist,
	CollectionCompare,
}

// CollectionKinds returns every known kind in a stable order.
func CollectionKinds() []CollectionKind {
	out := make([]CollectionKind, len(validCollectionKinds))
	copy(out, validCollectionKinds)
	return out
}

// String implements fmt.Stringer.
func (k CollectionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CollectionKind.
func (k CollectionKind) IsValid() bool {
	for _, candidate := range validCollectionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// StorageKey is the device storage key holding the guest list.
func (k CollectionKind) StorageKey() string {
	return "guest_" + string(k)
}

// ResourcePath is the remote API path of the collection.
func (k CollectionKind) ResourcePath() string {
	return "/" + string(k)
}

// Noun is how user-facing messages refer to the collection.
func (k CollectionKind) Noun() string {
	if k == CollectionCompare {
		return "comparison"
	}
	return string(k)
}

// SupportsQuantity reports whether entries carry a quantity.
func (k CollectionKind) SupportsQuantity() bool {
	return k == CollectionCart
}

// HasCapacityLimit reports whether the collection is bounded in size.
func (k CollectionKind) HasCapacityLimit() bool {
	return k == CollectionCompare
}

// ParseCollectionKind converts raw input into a CollectionKind.
func ParseCollectionKind(value string) (CollectionKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCollectionKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid collection kind %q", value)
}
