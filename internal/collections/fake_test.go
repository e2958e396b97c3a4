package collections

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront-collections/internal/collections/local"
	"github.com/angelmondragon/storefront-collections/internal/collections/remote"
	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
	"github.com/angelmondragon/storefront-collections/pkg/storage/memory"
	"github.com/angelmondragon/storefront-collections/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory storefront API with failure injection.
type fakeRemote struct {
	mu       sync.Mutex
	items    []types.Item
	nextID   int
	sessions []auth.Session
	calls    map[string]int

	// addHook runs before an add is applied; tests block on it to hold an add in flight.
	addHook   func(ctx context.Context, productID string)
	addErr    error
	removeErr map[string]error
	updateErr error
	listErr   error
	// hiddenAdds keeps freshly added entries out of List for that many calls.
	hiddenAdds int
	hidden     []string
	// omitAddQuantity stores the quantity but leaves it out of the add response.
	omitAddQuantity bool
}

func newFakeRemote(items ...types.Item) *fakeRemote {
	return &fakeRemote{
		items:     types.CloneItems(items),
		calls:     make(map[string]int),
		removeErr: make(map[string]error),
	}
}

func (f *fakeRemote) record(ctx context.Context, op string) {
	f.calls[op]++
	f.sessions = append(f.sessions, auth.SessionFromContext(ctx))
}

func (f *fakeRemote) Add(ctx context.Context, productID string, quantity int) (types.Item, error) {
	f.mu.Lock()
	hook := f.addHook
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, productID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, opAdd)
	if f.addErr != nil {
		return types.Item{}, f.addErr
	}
	f.nextID++
	item := types.Item{
		EntryID:   types.NewFlexID(fmt.Sprintf("srv-%d", f.nextID)),
		ProductID: types.NewFlexID(productID),
		Quantity:  quantity,
	}
	f.items = append(f.items, item)
	if f.hiddenAdds > 0 {
		f.hidden = append(f.hidden, item.EntryID.String())
	}
	created := item.Clone()
	if f.omitAddQuantity {
		created.Quantity = 0
	}
	return created, nil
}

func (f *fakeRemote) Remove(ctx context.Context, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, opRemove)
	if err := f.removeErr[entryID]; err != nil {
		return err
	}
	remaining, found := local.RemoveEntry(f.items, entryID)
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
	}
	f.items = remaining
	return nil
}

func (f *fakeRemote) Update(ctx context.Context, entryID string, changes remote.Changes) (types.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, opUpdate)
	if f.updateErr != nil {
		return types.Item{}, f.updateErr
	}
	idx := local.IndexOfEntry(f.items, entryID)
	if idx < 0 {
		return types.Item{}, pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
	}
	if changes.Quantity != nil {
		f.items[idx].Quantity = *changes.Quantity
	}
	return f.items[idx].Clone(), nil
}

func (f *fakeRemote) List(ctx context.Context) ([]types.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Item, 0, len(f.items))
	for _, item := range f.items {
		if f.hiddenAdds > 0 && contains(f.hidden, item.EntryID.String()) {
			continue
		}
		out = append(out, item.Clone())
	}
	if f.hiddenAdds > 0 {
		f.hiddenAdds--
	}
	return out, nil
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) snapshot() []types.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.CloneItems(f.items)
}

func (f *fakeRemote) lastSession() auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return auth.Session{}
	}
	return f.sessions[len(f.sessions)-1]
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// failingKV fails every write and, optionally, every read.
type failingKV struct {
	storage.KV
	failReads bool
}

var errDiskFull = errors.New("disk full")

func (f failingKV) GetItem(ctx context.Context, key string) (string, error) {
	if f.failReads {
		return "", errDiskFull
	}
	return f.KV.GetItem(ctx, key)
}

func (f failingKV) SetItem(context.Context, string, string) error {
	return errDiskFull
}

type harness struct {
	rec     *Reconciler
	remote  *fakeRemote
	backend *memory.Store
	logs    *bytes.Buffer
}

const testDevice = "device-1"

var shopper = auth.Session{Token: "token-1", UserID: "user-1"}

func noReflect() Options {
	return Options{ReflectWait: -1}
}

func newHarness(t *testing.T, kind enums.CollectionKind, opts Options, session auth.Session, server *fakeRemote) *harness {
	t.Helper()
	backend := memory.New()
	return newHarnessOn(t, kind, opts, session, server, backend, backend.ForDevice(testDevice))
}

func newHarnessOn(t *testing.T, kind enums.CollectionKind, opts Options, session auth.Session, server *fakeRemote, backend *memory.Store, kv storage.KV) *harness {
	t.Helper()
	if server == nil {
		server = newFakeRemote()
	}
	logs := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: logs})
	seq := 0
	rec, err := New(context.Background(), Deps{
		Kind:   kind,
		Local:  local.New(kv, kind.StorageKey(), logg),
		Remote: server,
		Logger: logg,
		NewEntryID: func() string {
			seq++
			return fmt.Sprintf("local-%d", seq)
		},
	}, opts, session)
	require.NoError(t, err)
	t.Cleanup(rec.Close)
	return &harness{rec: rec, remote: server, backend: backend, logs: logs}
}

func (h *harness) stored(t *testing.T, kind enums.CollectionKind) []types.Item {
	t.Helper()
	return local.New(h.backend.ForDevice(testDevice), kind.StorageKey(), nil).Load(context.Background())
}

func product(id string) types.Item {
	return types.Item{ProductID: types.NewFlexID(id), Name: "Product " + id}
}
