package collections

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-collections/api/middleware"
	"github.com/angelmondragon/storefront-collections/api/responses"
	"github.com/angelmondragon/storefront-collections/api/validators"
	collectionsvc "github.com/angelmondragon/storefront-collections/internal/collections"
	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
)

// Registry hands out the reconciler for a device's collection.
type Registry interface {
	Get(ctx context.Context, deviceID string, kind enums.CollectionKind, session auth.Session) (*collectionsvc.Reconciler, error)
}

// CollectionList returns the collection with its current error state. Pass
// refresh=true to re-read the backing source first.
func CollectionList(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		refresh, err := validators.ParseQueryBool(r, "refresh", false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if refresh {
			if err := rec.Refresh(ctx); err != nil {
				responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
				return
			}
		}

		responses.WriteSuccess(w, newCollectionResponse(rec.Snapshot()))
	}
}

// CollectionToggle adds the product if absent and removes it otherwise.
func CollectionToggle(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := rec.Toggle(ctx, payload.Item, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
			return
		}

		responses.WriteSuccess(w, toggleResponse{
			Added:      result.Added,
			Removed:    result.Removed,
			Ignored:    result.Ignored,
			Entry:      result.Entry,
			Collection: newCollectionResponse(rec.Snapshot()),
		})
	}
}

// CollectionAdd inserts a product, rejecting duplicates and full compare lists.
func CollectionAdd(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := rec.Add(ctx, payload.Item, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, entryResponse{
			Entry:      entry,
			Collection: newCollectionResponse(rec.Snapshot()),
		})
	}
}

// CollectionRemove deletes one entry. Unknown entries succeed.
func CollectionRemove(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entryID, err := pathParam(r, "entryId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := rec.Remove(ctx, entryID); err != nil {
			responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
			return
		}

		responses.WriteSuccess(w, newCollectionResponse(rec.Snapshot()))
	}
}

// CollectionUpdate changes a cart entry's quantity; zero removes it.
func CollectionUpdate(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entryID, err := pathParam(r, "entryId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := rec.UpdateQuantity(ctx, entryID, *payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
			return
		}

		responses.WriteSuccess(w, newCollectionResponse(rec.Snapshot()))
	}
}

// CollectionMember reports whether a product is in the collection.
func CollectionMember(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		productID, err := pathParam(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, membershipResponse{
			ProductID: productID,
			Member:    rec.IsMember(productID),
			Pending:   rec.Pending(productID),
		})
	}
}

// CollectionClear empties the collection.
func CollectionClear(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := rec.Clear(ctx); err != nil {
			responses.WriteError(ctx, logg, w, collectionsvc.ToAPIError(err))
			return
		}

		responses.WriteSuccess(w, newCollectionResponse(rec.Snapshot()))
	}
}

// CollectionClearError dismisses the visible error before it expires.
func CollectionClearError(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rec.ClearError()
		responses.WriteSuccess(w, newCollectionResponse(rec.Snapshot()))
	}
}

func reconcilerFor(r *http.Request, reg Registry) (*collectionsvc.Reconciler, error) {
	if reg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "collections unavailable")
	}
	kind, err := enums.ParseCollectionKind(chi.URLParam(r, "kind"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown collection")
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device context missing")
	}
	return reg.Get(r.Context(), deviceID, kind, auth.SessionFromContext(r.Context()))
}

func pathParam(r *http.Request, name string) (string, error) {
	value := validators.SanitizeString(chi.URLParam(r, name), maxPathParamLength)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	return value, nil
}
