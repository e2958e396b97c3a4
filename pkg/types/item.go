package types

import (
	"github.com/shopspring/decimal"
)

// ProductRef is the nested product shape some payloads attach to an entry.
type ProductRef struct {
	ID   FlexID `json:"id,omitzero"`
	Slug string `json:"slug,omitempty"`
}

// Item is one entry of a cart, wishlist or compare collection. Every product
// reference field is optional because upstream sources disagree on which one they
// send; see internal/identity for how they are matched.
type Item struct {
	EntryID   FlexID      `json:"entry_id,omitzero"`
	ProductID FlexID      `json:"product_id,omitzero"`
	ID        FlexID      `json:"id,omitzero"`
	SKU       FlexID      `json:"sku,omitzero"`
	Product   *ProductRef `json:"product,omitempty"`

	Quantity int `json:"quantity,omitempty"`

	Name          string           `json:"name,omitempty"`
	Brand         string           `json:"brand,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Image         string           `json:"image,omitempty"`
	Rating        float64          `json:"rating,omitempty"`
	ReviewCount   int              `json:"review_count,omitempty"`
	Colors        []string         `json:"colors,omitempty"`
	InStock       *bool            `json:"in_stock,omitempty"`

	// LocalOnly marks an entry that lives in guest storage while the collection is
	// server-backed, i.e. a remote write that fell back to the device.
	LocalOnly bool `json:"local_only,omitempty"`
}

// Available reports the stock flag, defaulting to true when it was never sent.
func (i Item) Available() bool {
	if i.InStock == nil {
		return true
	}
	return *i.InStock
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (i Item) Clone() Item {
	out := i
	if i.Product != nil {
		p := *i.Product
		out.Product = &p
	}
	if i.Price != nil {
		p := *i.Price
		out.Price = &p
	}
	if i.OriginalPrice != nil {
		p := *i.OriginalPrice
		out.OriginalPrice = &p
	}
	if i.InStock != nil {
		v := *i.InStock
		out.InStock = &v
	}
	if i.Colors != nil {
		out.Colors = append([]string(nil), i.Colors...)
	}
	return out
}

// CloneItems deep-copies a slice of items. A nil input yields an empty slice.
func CloneItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}
