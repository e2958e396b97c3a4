package collections

import (
	collectionsvc "github.com/angelmondragon/storefront-collections/internal/collections"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	"github.com/angelmondragon/storefront-collections/pkg/types"
)

type collectionResponse struct {
	Kind    enums.CollectionKind      `json:"kind"`
	Mode    string                    `json:"mode"`
	Items   []types.Item              `json:"items"`
	Count   int                       `json:"count"`
	Error   *collectionsvc.ErrorState `json:"error,omitempty"`
	Version uint64                    `json:"version"`
}

func newCollectionResponse(snap collectionsvc.Snapshot) collectionResponse {
	items := snap.Items
	if items == nil {
		items = []types.Item{}
	}
	return collectionResponse{
		Kind:    snap.Kind,
		Mode:    snap.Mode.String(),
		Items:   items,
		Count:   len(items),
		Error:   snap.Error,
		Version: snap.Version,
	}
}

type toggleResponse struct {
	Added      bool               `json:"added"`
	Removed    bool               `json:"removed"`
	Ignored    bool               `json:"ignored"`
	Entry      *types.Item        `json:"entry,omitempty"`
	Collection collectionResponse `json:"collection"`
}

type entryResponse struct {
	Entry      types.Item         `json:"entry"`
	Collection collectionResponse `json:"collection"`
}

type membershipResponse struct {
	ProductID string `json:"product_id"`
	Member    bool   `json:"member"`
	Pending   bool   `json:"pending"`
}
