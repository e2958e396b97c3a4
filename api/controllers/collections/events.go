package collections

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-collections/api/responses"
	collectionsvc "github.com/angelmondragon/storefront-collections/internal/collections"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
)

const keepAliveInterval = 15 * time.Second

// CollectionEvents streams collection snapshots as server-sent events until
// the client disconnects or the reconciler is evicted.
func CollectionEvents(reg Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, err := reconcilerFor(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		updates, cancel := rec.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case snap, open := <-updates:
				if !open {
					return
				}
				if err := writeSnapshotEvent(w, snap); err != nil {
					if logg != nil {
						logg.Warn(logg.WithField(ctx, "error", err.Error()), "collections.events_write_failed")
					}
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSnapshotEvent(w io.Writer, snap collectionsvc.Snapshot) error {
	payload, err := json.Marshal(newCollectionResponse(snap))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Version, payload)
	return err
}
