package collections

import "github.com/angelmondragon/storefront-collections/pkg/types"

const maxPathParamLength = 128

// itemRequest is the body of toggle and add calls. The item is taken as the
// storefront sent it; any identity field may carry the product reference.
type itemRequest struct {
	Item     types.Item `json:"item"`
	Quantity int        `json:"quantity" validate:"min=0,max=999"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=999"`
}
