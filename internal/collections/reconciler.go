// Package collections hosts the reconciler that presents a cart, wishlist or
// compare list as one collection regardless of whether it is backed by the
// storefront API (signed-in shopper) or by device storage (guest).
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
	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/types"
	"github.com/google/uuid"
)

// Mode is the backing source a reconciler currently reads and writes.
type Mode int

const (
	ModeGuest Mode = iota
	ModeAuthenticated
)

func (m Mode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// MarshalText renders the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// RemoteStore is the storefront API surface a reconciler needs.
type RemoteStore interface {
	Add(ctx context.Context, productID string, quantity int) (types.Item, error)
	Remove(ctx context.Context, entryID string) error
	Update(ctx context.Context, entryID string, changes remote.Changes) (types.Item, error)
	List(ctx context.Context) ([]types.Item, error)
}

// Recorder receives operation telemetry. *metrics.CollectionMetrics satisfies it.
type Recorder interface {
	ObserveOperation(kind, op, outcome string)
	ObserveFallback(kind, op string)
	ObserveIgnoredToggle(kind string)
	ObserveRemote(kind, op string, duration time.Duration, err error)
}

// Options tunes reconciler behaviour. Zero fields take the defaults below; a
// negative ReflectWait turns the post-write wait off.
type Options struct {
	CompareLimit int
	ErrorTTL     time.Duration
	ReflectWait  time.Duration
	PollInterval time.Duration
}

const (
	DefaultCompareLimit = 4
	DefaultErrorTTL     = 3 * time.Second
	DefaultReflectWait  = 1500 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.CompareLimit <= 0 {
		o.CompareLimit = DefaultCompareLimit
	}
	if o.ErrorTTL == 0 {
		o.ErrorTTL = DefaultErrorTTL
	}
	if o.ReflectWait == 0 {
		o.ReflectWait = DefaultReflectWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Deps are the collaborators of one reconciler.
type Deps struct {
	Kind     enums.CollectionKind
	Local    *local.Store
	Remote   RemoteStore
	Logger   *logger.Logger
	Metrics  Recorder
	Resolver *identity.Resolver
	Clock    func() time.Time
	// NewEntryID mints ids for device-stored entries.
	NewEntryID func() string
}

// ToggleResult says what a toggle did. Ignored is set when another toggle for
// the same product was still running.
type ToggleResult struct {
	Added   bool        `json:"added"`
	Removed bool        `json:"removed"`
	Ignored bool        `json:"ignored"`
	Entry   *types.Item `json:"entry,omitempty"`
}

// Reconciler owns one collection of one device.
type Reconciler struct {
	kind       enums.CollectionKind
	local      *local.Store
	remote     RemoteStore
	logg       *logger.Logger
	metrics    Recorder
	resolver   *identity.Resolver
	now        func() time.Time
	newEntryID func() string
	opts       Options

	mu       sync.Mutex
	mode     Mode
	session  auth.Session
	epoch    uint64
	items    []types.Item
	pending  map[string]types.Item
	reserved int
	lastUsed time.Time

	fault      *ErrorState
	faultSeq   uint64
	faultTimer *time.Timer

	subs    map[uint64]chan Snapshot
	nextSub uint64
	version uint64
	closed  bool
}

// New builds a reconciler whose initial mode follows session and loads the
// matching list.
func New(ctx context.Context, deps Deps, opts Options, session auth.Session) (*Reconciler, error) {
	if !deps.Kind.IsValid() {
		return nil, fmt.Errorf("invalid collection kind %q", deps.Kind)
	}
	if deps.Local == nil {
		return nil, errors.New("local store is required")
	}
	if deps.Remote == nil {
		return nil, errors.New("remote store is required")
	}

	r := &Reconciler{
		kind:       deps.Kind,
		local:      deps.Local,
		remote:     deps.Remote,
		logg:       deps.Logger,
		metrics:    deps.Metrics,
		resolver:   deps.Resolver,
		now:        deps.Clock,
		newEntryID: deps.NewEntryID,
		opts:       opts.withDefaults(),
		items:      []types.Item{},
		pending:    make(map[string]types.Item),
		subs:       make(map[uint64]chan Snapshot),
	}
	if r.metrics == nil {
		r.metrics = noopRecorder{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.resolver == nil {
		r.resolver = identity.New(r.now)
	}
	if r.newEntryID == nil {
		r.newEntryID = uuid.NewString
	}
	r.lastUsed = r.now()

	if session.IsAuthenticated() {
		r.Login(ctx, session)
	} else {
		r.mu.Lock()
		r.items = r.normalize(ctx, r.local.Load(ctx))
		r.mu.Unlock()
	}
	return r, nil
}

// Kind reports which collection this reconciler manages.
func (r *Reconciler) Kind() enums.CollectionKind {
	return r.kind
}

// Mode reports the active backing source.
func (r *Reconciler) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Login switches to the storefront API. The guest list is dropped from memory
// but left in device storage; the view is seeded from the server. A failed
// seed leaves the view empty.
func (r *Reconciler) Login(ctx context.Context, session auth.Session) {
	if !session.IsAuthenticated() {
		r.Logout(ctx)
		return
	}

	r.mu.Lock()
	r.mode = ModeAuthenticated
	r.session = session
	r.epoch++
	epoch := r.epoch
	r.items = []types.Item{}
	r.touchLocked()
	r.publishLocked()
	r.mu.Unlock()

	list, err := r.listRemote(r.remoteCtx(ctx, session))
	if err != nil {
		r.warn(ctx, "collections.login_seed_failed", err)
		return
	}
	r.adopt(ctx, epoch, list)
}

// Logout switches back to device storage and reloads whatever was last
// persisted there.
func (r *Reconciler) Logout(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ModeGuest
	r.session = auth.Session{}
	r.epoch++
	r.items = r.normalize(ctx, r.local.Load(ctx))
	r.touchLocked()
	r.publishLocked()
}

// ApplySession moves the reconciler to the mode session implies. A token
// refresh for the same shopper only swaps the token; a different shopper is
// treated as a fresh login.
func (r *Reconciler) ApplySession(ctx context.Context, session auth.Session) {
	r.mu.Lock()
	mode, current := r.mode, r.session
	r.touchLocked()
	switch {
	case !session.IsAuthenticated() && mode == ModeGuest:
		r.mu.Unlock()
		return
	case session.IsAuthenticated() && mode == ModeAuthenticated && session.UserID == current.UserID:
		r.session = session
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if session.IsAuthenticated() {
		r.Login(ctx, session)
		return
	}
	r.Logout(ctx)
}

// Refresh re-reads the active source.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.mode == ModeGuest {
		r.items = r.normalize(ctx, r.local.Load(ctx))
		r.touchLocked()
		r.publishLocked()
		r.mu.Unlock()
		return nil
	}
	session, epoch := r.session, r.epoch
	r.mu.Unlock()

	list, err := r.listRemote(r.remoteCtx(ctx, session))
	if err != nil {
		return newOpError(ErrRemoteUnavailable, fmt.Sprintf("Failed to load %s", r.kind.Noun()), err)
	}
	r.adopt(ctx, epoch, list)
	return nil
}

// IsMember reports whether any entry references productID.
func (r *Reconciler) IsMember(productID any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.resolver.Matches(&r.items[i], productID) {
			return true
		}
	}
	return false
}

// List returns a copy of the current entries in display order.
func (r *Reconciler) List() []types.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.CloneItems(r.items)
}

// LastUsed reports when the reconciler last served a call.
func (r *Reconciler) LastUsed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// Close ends every subscription and stops the error timer.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.faultTimer != nil {
		r.faultTimer.Stop()
	}
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// adopt replaces the server-backed part of the view with list, keeping
// entries that only live on the device.
func (r *Reconciler) adopt(ctx context.Context, epoch uint64, list []types.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch || r.mode != ModeAuthenticated {
		return
	}
	next := make([]types.Item, 0, len(list)+len(r.items))
	next = append(next, list...)
	for _, item := range r.items {
		if item.LocalOnly {
			next = append(next, item)
		}
	}
	r.items = r.normalize(ctx, next)
	r.publishLocked()
}

// normalize enforces the list invariants on data read from outside: one entry
// per product and, for the cart, a quantity of at least one.
func (r *Reconciler) normalize(ctx context.Context, items []types.Item) []types.Item {
	out := make([]types.Item, 0, len(items))
	dropped := 0
	for _, item := range items {
		if r.kind.SupportsQuantity() && item.Quantity < 1 {
			item.Quantity = 1
		}
		duplicate := false
		for i := range out {
			if r.resolver.SameProduct(&out[i], &item) {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped++
			continue
		}
		out = append(out, item)
	}
	if dropped > 0 && r.logg != nil {
		r.logg.Warn(r.logg.WithField(ctx, "dropped", dropped), "collections.duplicate_entries_dropped")
	}
	return out
}

func (r *Reconciler) findProductLocked(item *types.Item) int {
	for i := range r.items {
		if r.resolver.SameProduct(&r.items[i], item) {
			return i
		}
	}
	return -1
}

func (r *Reconciler) touchLocked() {
	r.lastUsed = r.now()
}

func (r *Reconciler) remoteCtx(ctx context.Context, session auth.Session) context.Context {
	return auth.WithSession(ctx, session)
}

func (r *Reconciler) listRemote(ctx context.Context) ([]types.Item, error) {
	start := time.Now()
	list, err := r.remote.List(ctx)
	r.metrics.ObserveRemote(string(r.kind), "list", time.Since(start), err)
	return list, err
}

func (r *Reconciler) logContext(ctx context.Context) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithCollection(ctx, string(r.kind))
}

func (r *Reconciler) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	ctx = r.logContext(ctx)
	if err != nil {
		ctx = r.logg.WithField(ctx, "error", err.Error())
	}
	r.logg.Warn(ctx, msg)
}

func (r *Reconciler) noun() string {
	return r.kind.Noun()
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, string)            {}
func (noopRecorder) ObserveFallback(string, string)                     {}
func (noopRecorder) ObserveIgnoredToggle(string)                        {}
func (noopRecorder) ObserveRemote(string, string, time.Duration, error) {}
