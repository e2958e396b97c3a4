package collections

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-collections/internal/collections/local"
	"github.com/angelmondragon/storefront-collections/internal/identity"
	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
)

const jobEvictIdle = "evict_idle_reconcilers"

// JobRecorder observes maintenance runs. *metrics.JobMetrics satisfies it.
type JobRecorder interface {
	Observe(job string, duration time.Duration, err error)
}

type registryKey struct {
	device string
	kind   enums.CollectionKind
}

// Registry keeps one reconciler per device and collection kind so the
// in-flight guard and error state outlive single requests.
type Registry struct {
	storage  storage.DeviceScoper
	remotes  map[enums.CollectionKind]RemoteStore
	opts     Options
	idleTTL  time.Duration
	logg     *logger.Logger
	metrics  Recorder
	jobs     JobRecorder
	resolver *identity.Resolver
	now      func() time.Time

	mu      sync.Mutex
	entries map[registryKey]*Reconciler
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRecorder routes operation telemetry to rec.
func WithRecorder(rec Recorder) RegistryOption {
	return func(g *Registry) { g.metrics = rec }
}

// WithJobRecorder routes sweep telemetry to rec.
func WithJobRecorder(rec JobRecorder) RegistryOption {
	return func(g *Registry) { g.jobs = rec }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(g *Registry) { g.now = now }
}

// NewRegistry builds a registry over device storage and one remote store per
// collection kind.
func NewRegistry(scoper storage.DeviceScoper, remotes map[enums.CollectionKind]RemoteStore, opts Options, idleTTL time.Duration, logg *logger.Logger, options ...RegistryOption) *Registry {
	g := &Registry{
		storage: scoper,
		remotes: remotes,
		opts:    opts,
		idleTTL: idleTTL,
		logg:    logg,
		now:     time.Now,
		entries: make(map[registryKey]*Reconciler),
	}
	for _, opt := range options {
		opt(g)
	}
	g.resolver = identity.New(g.now)
	return g
}

// Get returns the device's reconciler for kind, creating it on first use, and
// brings it in line with session.
func (g *Registry) Get(ctx context.Context, deviceID string, kind enums.CollectionKind, session auth.Session) (*Reconciler, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device id is required")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown collection %q", kind))
	}
	remoteStore, ok := g.remotes[kind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no remote store for %s", kind))
	}

	key := registryKey{device: deviceID, kind: kind}
	g.mu.Lock()
	rec, found := g.entries[key]
	g.mu.Unlock()
	if found {
		rec.ApplySession(ctx, session)
		return rec, nil
	}

	var logCtx = ctx
	if g.logg != nil {
		logCtx = g.logg.WithDeviceID(ctx, deviceID)
	}
	created, err := New(logCtx, Deps{
		Kind:     kind,
		Local:    local.New(g.storage.ForDevice(deviceID), kind.StorageKey(), g.logg),
		Remote:   remoteStore,
		Logger:   g.logg,
		Metrics:  g.metrics,
		Resolver: g.resolver,
		Clock:    g.now,
	}, g.opts, session)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to open collection")
	}

	g.mu.Lock()
	if existing, raced := g.entries[key]; raced {
		g.mu.Unlock()
		created.Close()
		existing.ApplySession(ctx, session)
		return existing, nil
	}
	g.entries[key] = created
	g.mu.Unlock()
	return created, nil
}

// Len reports how many reconcilers are live.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Sweep closes reconcilers idle for longer than the idle TTL and reports how
// many it evicted.
func (g *Registry) Sweep() int {
	if g.idleTTL <= 0 {
		return 0
	}
	cutoff := g.now().Add(-g.idleTTL)

	g.mu.Lock()
	var evicted []*Reconciler
	for key, rec := range g.entries {
		if rec.LastUsed().Before(cutoff) {
			evicted = append(evicted, rec)
			delete(g.entries, key)
		}
	}
	g.mu.Unlock()

	for _, rec := range evicted {
		rec.Close()
	}
	return len(evicted)
}

// Run sweeps on every tick until ctx is done.
func (g *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			evicted := g.Sweep()
			if g.jobs != nil {
				g.jobs.Observe(jobEvictIdle, time.Since(start), nil)
			}
			if evicted > 0 && g.logg != nil {
				g.logg.Info(g.logg.WithField(ctx, "evicted", evicted), "collections.idle_reconcilers_evicted")
			}
		}
	}
}

// Close closes every live reconciler.
func (g *Registry) Close() {
	g.mu.Lock()
	entries := g.entries
	g.entries = make(map[registryKey]*Reconciler)
	g.mu.Unlock()
	for _, rec := range entries {
		rec.Close()
	}
}
