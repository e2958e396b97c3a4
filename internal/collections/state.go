package collections

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/enums"
	"github.com/angelmondragon/storefront-collections/pkg/types"
)

// Error state codes.
const (
	StateCapacityExceeded  = "capacity_exceeded"
	StateDuplicateEntry    = "duplicate_entry"
	StateRemoteUnavailable = "remote_unavailable"
	StateUnsupported       = "unsupported"
	StateError             = "error"
)

// ErrorState is the last user-visible failure. It clears itself after the
// configured TTL unless replaced first.
type ErrorState struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is what subscribers receive after every change.
type Snapshot struct {
	Kind    enums.CollectionKind `json:"kind"`
	Mode    Mode                 `json:"mode"`
	Items   []types.Item         `json:"items"`
	Error   *ErrorState          `json:"error,omitempty"`
	Version uint64               `json:"version"`
}

// Error returns the current error state, or nil.
func (r *Reconciler) Error() *ErrorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fault == nil {
		return nil
	}
	state := *r.fault
	return &state
}

// SetError records err as the visible error state.
func (r *Reconciler) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setErrorLocked(err)
}

// ClearError drops the error state early.
func (r *Reconciler) ClearError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fault == nil {
		return
	}
	r.faultSeq++
	if r.faultTimer != nil {
		r.faultTimer.Stop()
		r.faultTimer = nil
	}
	r.fault = nil
	r.publishLocked()
}

func (r *Reconciler) setErrorLocked(err error) {
	if err == nil {
		return
	}
	r.faultSeq++
	seq := r.faultSeq
	r.fault = &ErrorState{Code: stateCode(err), Message: MessageOf(err), At: r.now()}
	if r.faultTimer != nil {
		r.faultTimer.Stop()
		r.faultTimer = nil
	}
	if r.opts.ErrorTTL > 0 && !r.closed {
		r.faultTimer = time.AfterFunc(r.opts.ErrorTTL, func() { r.expireError(seq) })
	}
	r.publishLocked()
}

// expireError clears the state only if no newer error replaced it.
func (r *Reconciler) expireError(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.faultSeq != seq || r.fault == nil {
		return
	}
	r.fault = nil
	r.faultTimer = nil
	r.publishLocked()
}

func stateCode(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return StateCapacityExceeded
	case errors.Is(err, ErrDuplicateEntry):
		return StateDuplicateEntry
	case errors.Is(err, ErrRemoteUnavailable):
		return StateRemoteUnavailable
	case errors.Is(err, ErrUnsupported):
		return StateUnsupported
	default:
		return StateError
	}
}

// Snapshot returns the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe streams snapshots, starting with the current one. Slow readers
// only ever see the latest state. The returned func ends the subscription.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- r.snapshotLocked()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snap := Snapshot{
		Kind:    r.kind,
		Mode:    r.mode,
		Items:   types.CloneItems(r.items),
		Version: r.version,
	}
	if r.fault != nil {
		state := *r.fault
		snap.Error = &state
	}
	return snap
}

func (r *Reconciler) publishLocked() {
	r.version++
	if len(r.subs) == 0 {
		return
	}
	snap := r.snapshotLocked()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// awaitReflection polls the storefront API until settled accepts the list or
// the wait budget runs out, then adopts the last list it saw if it settled.
// It never fails the operation that triggered it.
func (r *Reconciler) awaitReflection(ctx context.Context, epoch uint64, settled func([]types.Item) bool) {
	if r.opts.ReflectWait <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.ReflectWait)
	defer cancel()

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		list, err := r.listRemote(ctx)
		if err == nil && settled(list) {
			r.adopt(ctx, epoch, list)
			return
		}
		select {
		case <-ctx.Done():
			if r.logg != nil {
				r.logg.Debug(r.logContext(ctx), "collections.reflection_timeout")
			}
			return
		case <-ticker.C:
		}
	}
}
