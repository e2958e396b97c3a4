package collections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-collections/internal/collections/local"
	"github.com/angelmondragon/storefront-collections/internal/collections/remote"
	"github.com/angelmondragon/storefront-collections/internal/identity"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/metrics"
	"github.com/angelmondragon/storefront-collections/pkg/types"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	opToggle = "toggle"
	opAdd    = "add"
	opRemove = "remove"
	opUpdate = "update"
	opClear  = "clear"

	clearConcurrency = 4
)

// Toggle adds the product when it is absent and removes its entry when it is
// present. A second toggle for a product whose first toggle has not settled is
// ignored rather than queued.
func (r *Reconciler) Toggle(ctx context.Context, item types.Item, quantity int) (ToggleResult, error) {
	canonical, ok := r.acquire(&item)
	if !ok {
		r.metrics.ObserveIgnoredToggle(string(r.kind))
		return ToggleResult{Ignored: true}, nil
	}
	defer r.release(canonical)

	r.mu.Lock()
	r.touchLocked()
	idx := r.findProductLocked(&item)
	var existing types.Item
	if idx >= 0 {
		existing = r.items[idx].Clone()
	}
	r.mu.Unlock()

	if idx >= 0 {
		err := r.removeEntry(ctx, opToggle, existing)
		r.record(opToggle, err)
		if err != nil {
			return ToggleResult{}, err
		}
		return ToggleResult{Removed: true, Entry: &existing}, nil
	}

	entry, err := r.addEntry(ctx, opToggle, item, canonical, quantity)
	r.record(opToggle, err)
	if err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{Added: true, Entry: &entry}, nil
}

// Add inserts the product, rejecting duplicates and, for compare lists, adds
// past the configured limit. Both rejections also set the error state.
func (r *Reconciler) Add(ctx context.Context, item types.Item, quantity int) (types.Item, error) {
	canonical, ok := r.acquire(&item)
	if !ok {
		r.mu.Lock()
		err := r.rejectLocked(ErrDuplicateEntry, r.duplicateMessage())
		r.mu.Unlock()
		r.record(opAdd, err)
		return types.Item{}, err
	}
	defer r.release(canonical)

	entry, err := r.addEntry(ctx, opAdd, item, canonical, quantity)
	r.record(opAdd, err)
	return entry, err
}

// Remove deletes the entry with entryID. Unknown ids are a no-op.
func (r *Reconciler) Remove(ctx context.Context, entryID string) error {
	r.mu.Lock()
	r.touchLocked()
	idx := local.IndexOfEntry(r.items, entryID)
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	entry := r.items[idx].Clone()
	r.mu.Unlock()

	err := r.removeEntry(ctx, opRemove, entry)
	r.record(opRemove, err)
	return err
}

// UpdateQuantity sets a cart entry's quantity. Zero or less removes the entry.
func (r *Reconciler) UpdateQuantity(ctx context.Context, entryID string, quantity int) error {
	if !r.kind.SupportsQuantity() {
		err := newOpError(ErrUnsupported, fmt.Sprintf("Quantity cannot be changed in a %s", r.noun()), nil)
		r.record(opUpdate, err)
		return err
	}
	if quantity <= 0 {
		return r.Remove(ctx, entryID)
	}

	r.mu.Lock()
	r.touchLocked()
	idx := local.IndexOfEntry(r.items, entryID)
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	entry := r.items[idx].Clone()

	if r.mode == ModeGuest {
		r.items[idx].Quantity = quantity
		r.local.Save(ctx, r.items)
		r.publishLocked()
		r.mu.Unlock()
		r.record(opUpdate, nil)
		return nil
	}
	if entry.LocalOnly {
		err := r.updateLocalLocked(ctx, entryID, quantity, nil)
		r.mu.Unlock()
		r.record(opUpdate, err)
		return err
	}
	session, epoch := r.session, r.epoch
	r.mu.Unlock()

	rctx := r.remoteCtx(ctx, session)
	start := time.Now()
	updated, err := r.remote.Update(rctx, entryID, remote.Changes{Quantity: &quantity})
	r.metrics.ObserveRemote(string(r.kind), opUpdate, time.Since(start), err)
	if err != nil {
		r.warn(ctx, "collections.remote_update_failed", err)
		r.metrics.ObserveFallback(string(r.kind), opUpdate)
		r.mu.Lock()
		err = r.updateLocalLocked(ctx, entryID, quantity, err)
		r.mu.Unlock()
		r.record(opUpdate, err)
		return err
	}

	merged := r.mergeServerEntry(updated, entry, r.resolver.CanonicalID(&entry), quantity)
	merged.Quantity = quantity
	r.mu.Lock()
	if r.epoch == epoch {
		if i := local.IndexOfEntry(r.items, entryID); i >= 0 {
			r.items[i] = merged
			r.publishLocked()
		}
	}
	r.mu.Unlock()

	r.awaitReflection(rctx, epoch, func(list []types.Item) bool {
		i := local.IndexOfEntry(list, entryID)
		return i >= 0 && list[i].Quantity == quantity
	})
	r.record(opUpdate, nil)
	return nil
}

// Clear empties the collection. Against the storefront API every entry is
// removed individually; failures are aggregated and the entries that could
// not be removed stay in the view.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.touchLocked()
	if r.mode == ModeGuest {
		r.items = []types.Item{}
		r.local.Save(ctx, r.items)
		r.publishLocked()
		r.mu.Unlock()
		r.record(opClear, nil)
		return nil
	}
	entries := types.CloneItems(r.items)
	session, epoch := r.session, r.epoch
	r.mu.Unlock()

	rctx := r.remoteCtx(ctx, session)
	var (
		resultMu sync.Mutex
		removed  = make(map[string]struct{}, len(entries))
		failed   error
	)
	var g errgroup.Group
	g.SetLimit(clearConcurrency)
	for _, entry := range entries {
		g.Go(func() error {
			id := entry.EntryID.String()
			err := r.clearEntry(rctx, entry)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				failed = multierr.Append(failed, fmt.Errorf("entry %s: %w", id, err))
				return nil
			}
			removed[id] = struct{}{}
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	if r.epoch == epoch {
		kept := make([]types.Item, 0, len(r.items))
		for _, item := range r.items {
			if _, ok := removed[item.EntryID.String()]; !ok {
				kept = append(kept, item)
			}
		}
		r.items = kept
		r.publishLocked()
	}
	var err error
	if failed != nil {
		err = newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to clear %s", r.noun()), failed)
		r.setErrorLocked(err)
	}
	r.mu.Unlock()

	r.record(opClear, err)
	return err
}

func (r *Reconciler) clearEntry(ctx context.Context, entry types.Item) error {
	id := entry.EntryID.String()
	if !entry.LocalOnly {
		start := time.Now()
		err := r.remote.Remove(ctx, id)
		r.metrics.ObserveRemote(string(r.kind), opRemove, time.Since(start), err)
		if err == nil || pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil
		}
		r.warn(ctx, "collections.remote_clear_failed", err)
		r.metrics.ObserveFallback(string(r.kind), opClear)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	found, err := r.local.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found && !entry.LocalOnly {
		return errors.New("entry not stored on device")
	}
	return nil
}

// addEntry runs with the product's toggle guard held.
func (r *Reconciler) addEntry(ctx context.Context, op string, item types.Item, canonical string, quantity int) (types.Item, error) {
	r.mu.Lock()
	if err := r.admitLocked(&item); err != nil {
		r.mu.Unlock()
		return types.Item{}, err
	}

	if r.mode == ModeGuest {
		entry := r.newLocalEntry(item, canonical, quantity)
		r.items = append(r.items, entry)
		r.local.Save(ctx, r.items)
		r.publishLocked()
		r.mu.Unlock()
		return entry.Clone(), nil
	}

	r.reserved++
	session, epoch := r.session, r.epoch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.reserved--
		r.mu.Unlock()
	}()

	rctx := r.remoteCtx(ctx, session)
	start := time.Now()
	created, err := r.remote.Add(rctx, canonical, r.requestQuantity(quantity))
	r.metrics.ObserveRemote(string(r.kind), opAdd, time.Since(start), err)
	if err != nil {
		return r.fallbackAdd(ctx, op, item, canonical, quantity, epoch, err)
	}

	entry := r.mergeServerEntry(created, item, canonical, quantity)
	r.mu.Lock()
	if r.epoch == epoch {
		r.items = append(r.items, entry)
		r.publishLocked()
	}
	r.mu.Unlock()

	entryID := entry.EntryID.String()
	r.awaitReflection(rctx, epoch, func(list []types.Item) bool {
		if entryID != "" {
			return local.IndexOfEntry(list, entryID) >= 0
		}
		for i := range list {
			if r.resolver.SameProduct(&list[i], &entry) {
				return true
			}
		}
		return false
	})
	return entry.Clone(), nil
}

// fallbackAdd stores the entry on the device after the storefront API refused
// or failed the add.
func (r *Reconciler) fallbackAdd(ctx context.Context, op string, item types.Item, canonical string, quantity int, epoch uint64, cause error) (types.Item, error) {
	r.warn(ctx, "collections.remote_add_failed", cause)
	r.metrics.ObserveFallback(string(r.kind), op)

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.newLocalEntry(item, canonical, quantity)
	existing := r.local.Load(ctx)
	reused := false
	for i := range existing {
		if r.resolver.SameProduct(&existing[i], &stored) {
			stored = existing[i].Clone()
			reused = true
			break
		}
	}
	if !reused {
		if _, err := r.local.Append(ctx, stored); err != nil {
			opErr := newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to add to %s", r.noun()), multierr.Combine(cause, err))
			r.setErrorLocked(opErr)
			return types.Item{}, opErr
		}
	}

	view := stored.Clone()
	view.LocalOnly = true
	if r.epoch == epoch {
		r.items = append(r.items, view)
		r.publishLocked()
	}
	return view.Clone(), nil
}

func (r *Reconciler) removeEntry(ctx context.Context, op string, entry types.Item) error {
	id := entry.EntryID.String()

	r.mu.Lock()
	if r.mode == ModeGuest {
		r.items, _ = local.RemoveEntry(r.items, id)
		r.local.Save(ctx, r.items)
		r.publishLocked()
		r.mu.Unlock()
		return nil
	}
	if entry.LocalOnly {
		defer r.mu.Unlock()
		if _, err := r.local.Delete(ctx, id); err != nil {
			opErr := newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to remove from %s", r.noun()), err)
			r.setErrorLocked(opErr)
			return opErr
		}
		r.items, _ = local.RemoveEntry(r.items, id)
		r.publishLocked()
		return nil
	}
	session, epoch := r.session, r.epoch
	r.mu.Unlock()

	rctx := r.remoteCtx(ctx, session)
	start := time.Now()
	err := r.remote.Remove(rctx, id)
	r.metrics.ObserveRemote(string(r.kind), opRemove, time.Since(start), err)
	if err == nil || pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		r.mu.Lock()
		if r.epoch == epoch {
			r.items, _ = local.RemoveEntry(r.items, id)
			r.publishLocked()
		}
		r.mu.Unlock()
		if err == nil {
			r.awaitReflection(rctx, epoch, func(list []types.Item) bool {
				return local.IndexOfEntry(list, id) < 0
			})
		}
		return nil
	}

	r.warn(ctx, "collections.remote_remove_failed", err)
	r.metrics.ObserveFallback(string(r.kind), op)

	r.mu.Lock()
	defer r.mu.Unlock()
	found, lerr := r.local.Delete(ctx, id)
	if lerr != nil || !found {
		opErr := newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to remove from %s", r.noun()), multierr.Combine(err, lerr))
		r.setErrorLocked(opErr)
		return opErr
	}
	if r.epoch == epoch {
		r.items, _ = local.RemoveEntry(r.items, id)
		r.publishLocked()
	}
	return nil
}

// updateLocalLocked writes a quantity change to device storage. cause is the
// remote failure that led here, if any.
func (r *Reconciler) updateLocalLocked(ctx context.Context, entryID string, quantity int, cause error) error {
	_, found, err := r.local.SetQuantity(ctx, entryID, quantity)
	if err != nil || !found {
		opErr := newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to update %s", r.noun()), multierr.Combine(cause, err))
		r.setErrorLocked(opErr)
		return opErr
	}
	if i := local.IndexOfEntry(r.items, entryID); i >= 0 {
		r.items[i].Quantity = quantity
		r.publishLocked()
	}
	return nil
}

// admitLocked applies the capacity and duplicate checks, in that order.
func (r *Reconciler) admitLocked(item *types.Item) error {
	if r.kind.HasCapacityLimit() && len(r.items)+r.reserved >= r.opts.CompareLimit {
		return r.rejectLocked(ErrCapacityExceeded, fmt.Sprintf("You can compare up to %d products at a time", r.opts.CompareLimit))
	}
	if r.findProductLocked(item) >= 0 {
		return r.rejectLocked(ErrDuplicateEntry, r.duplicateMessage())
	}
	return nil
}

func (r *Reconciler) rejectLocked(kind error, message string) error {
	err := newOpError(kind, message, nil)
	r.setErrorLocked(err)
	return err
}

func (r *Reconciler) duplicateMessage() string {
	return fmt.Sprintf("Product already in %s", r.noun())
}

// acquire takes the per-product guard. It fails when a pending operation
// already covers the same product under any of its identifiers.
func (r *Reconciler) acquire(item *types.Item) (string, bool) {
	canonical := r.resolver.CanonicalID(item)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	for key, pending := range r.pending {
		if key == canonical || r.resolver.SameProduct(&pending, item) {
			return "", false
		}
	}
	r.pending[canonical] = item.Clone()
	return canonical, true
}

func (r *Reconciler) release(canonical string) {
	r.mu.Lock()
	delete(r.pending, canonical)
	r.mu.Unlock()
}

// Pending reports whether an operation for productID is still settling.
func (r *Reconciler) Pending(productID any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, pending := range r.pending {
		if r.resolver.Matches(&pending, productID) {
			return true
		}
		if token, ok := identity.TokenOf(productID); ok && token == key {
			return true
		}
	}
	return false
}

func (r *Reconciler) newLocalEntry(item types.Item, canonical string, quantity int) types.Item {
	entry := item.Clone()
	entry.EntryID = types.NewFlexID(r.newEntryID())
	entry.LocalOnly = false
	if entry.ProductID.IsZero() {
		entry.ProductID = types.NewFlexID(canonical)
	}
	if r.kind.SupportsQuantity() {
		entry.Quantity = r.requestQuantity(quantity)
	} else {
		entry.Quantity = 0
	}
	return entry
}

// mergeServerEntry fills what the server left out of its entry from the item
// the caller supplied and the quantity it requested.
func (r *Reconciler) mergeServerEntry(created, item types.Item, canonical string, quantity int) types.Item {
	entry := created.Clone()
	if !r.resolver.HasStableIdentity(&entry) {
		entry.ProductID = types.NewFlexID(canonical)
	}
	if entry.Name == "" {
		entry.Name = item.Name
	}
	if entry.Brand == "" {
		entry.Brand = item.Brand
	}
	if entry.Image == "" {
		entry.Image = item.Image
	}
	if entry.Price == nil && item.Price != nil {
		p := *item.Price
		entry.Price = &p
	}
	if r.kind.SupportsQuantity() && entry.Quantity < 1 {
		entry.Quantity = r.requestQuantity(quantity)
	}
	entry.LocalOnly = false
	return entry
}

func (r *Reconciler) requestQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}

func (r *Reconciler) record(op string, err error) {
	r.metrics.ObserveOperation(string(r.kind), op, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrDuplicateEntry), errors.Is(err, ErrUnsupported):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailure
	}
}
