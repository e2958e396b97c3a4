package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/storefront-collections/pkg/types"
	"github.com/shopspring/decimal"
)

// wireProduct is the nested product some endpoints embed in an entry.
type wireProduct struct {
	ID            types.FlexID     `json:"id"`
	Slug          string           `json:"slug"`
	SKU           types.FlexID     `json:"sku"`
	Name          string           `json:"name"`
	Brand         string           `json:"brand"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Image         string           `json:"image"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"review_count"`
	Colors        []string         `json:"colors"`
	InStock       *bool            `json:"in_stock"`
}

// wireItem is a server entry. The server's id names the entry, never the product.
type wireItem struct {
	EntryID   types.FlexID `json:"entry_id"`
	ID        types.FlexID `json:"id"`
	ProductID types.FlexID `json:"product_id"`
	SKU       types.FlexID `json:"sku"`
	Product   *wireProduct `json:"product"`
	Quantity  int          `json:"quantity"`

	Name          string           `json:"name"`
	Brand         string           `json:"brand"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Image         string           `json:"image"`
	Rating        float64          `json:"rating"`
	ReviewCount   int              `json:"review_count"`
	Colors        []string         `json:"colors"`
	InStock       *bool            `json:"in_stock"`
}

func (w wireItem) toItem() types.Item {
	item := types.Item{
		EntryID:       w.EntryID,
		ProductID:     w.ProductID,
		SKU:           w.SKU,
		Quantity:      w.Quantity,
		Name:          w.Name,
		Brand:         w.Brand,
		Price:         w.Price,
		OriginalPrice: w.OriginalPrice,
		Image:         w.Image,
		Rating:        w.Rating,
		ReviewCount:   w.ReviewCount,
		Colors:        w.Colors,
		InStock:       w.InStock,
	}
	// Rows without entry_id use id as the line id. Otherwise id is a product
	// identifier and stays a candidate token.
	if item.EntryID.Valid {
		item.ID = w.ID
	} else {
		item.EntryID = w.ID
	}

	if p := w.Product; p != nil {
		item.Product = &types.ProductRef{ID: p.ID, Slug: p.Slug}
		if !item.SKU.Valid {
			item.SKU = p.SKU
		}
		if item.Name == "" {
			item.Name = p.Name
		}
		if item.Brand == "" {
			item.Brand = p.Brand
		}
		if item.Price == nil {
			item.Price = p.Price
		}
		if item.OriginalPrice == nil {
			item.OriginalPrice = p.OriginalPrice
		}
		if item.Image == "" {
			item.Image = p.Image
		}
		if item.Rating == 0 {
			item.Rating = p.Rating
		}
		if item.ReviewCount == 0 {
			item.ReviewCount = p.ReviewCount
		}
		if item.Colors == nil {
			item.Colors = p.Colors
		}
		if item.InStock == nil {
			item.InStock = p.InStock
		}
	}
	return item
}

// wireList accepts either a bare array or an object wrapping it under items.
type wireList []wireItem

func (l *wireList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []wireItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	case '{':
		var wrapped struct {
			Items []wireItem `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		*l = wrapped.Items
		return nil
	default:
		return fmt.Errorf("unexpected list payload starting with %q", trimmed[0])
	}
}
