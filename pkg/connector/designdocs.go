package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/couchconnector/pkg/observability/tracing"
	"github.com/nimburion/couchconnector/pkg/store"
)

// DesignDocID returns the reserved document id for design document name.
func DesignDocID(name string) string {
	return store.DesignDocPrefix + name
}

// mergeDesignDoc overlays def onto the stored fields. Stored fields absent
// from def survive; _id and _rev always come from the stored document.
func mergeDesignDoc(existing store.Document, def map[string]interface{}, id string) store.Document {
	merged := make(store.Document, len(existing)+len(def))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range def {
		if k == store.FieldID || k == store.FieldRev {
			continue
		}
		merged[k] = v
	}
	merged[store.FieldID] = id
	if rev := existing.Rev(); rev != "" {
		merged[store.FieldRev] = rev
	} else {
		delete(merged, store.FieldRev)
	}
	return merged
}

// SaveDesignDocs creates or merges every configured design document.
// Documents are synced concurrently; one failing does not stop the others,
// and all failures are returned joined.
func (c *Connector) SaveDesignDocs(ctx context.Context) error {
	if len(c.designDocs) == 0 {
		return nil
	}
	ctx, op := c.begin(ctx, tracing.SpanOperationDesignSync, "", tracing.WithKeyCount(len(c.designDocs)))
	err := c.saveDesignDocs(ctx)
	op.end(err)
	return err
}

func (c *Connector) saveDesignDocs(ctx context.Context) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(c.designDocs))
	for name := range c.designDocs {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			errs[i] = c.syncDesignDoc(ctx, h, name, c.designDocs[name])
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (c *Connector) syncDesignDoc(ctx context.Context, h *Handle, name string, def map[string]interface{}) error {
	id := DesignDocID(name)
	log := c.log.WithContext(ctx)
	existing, err := h.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = store.Document{}
	case err != nil:
		log.Warn("design document sync failed", "design_doc", id, "error", err)
		return fmt.Errorf("design document %s: %w", id, err)
	}

	res, err := h.Put(ctx, mergeDesignDoc(existing, def, id))
	if err != nil {
		log.Warn("design document sync failed", "design_doc", id, "error", err)
		return fmt.Errorf("design document %s: %w", id, err)
	}
	log.Info("design document synced", "design_doc", id, "rev", res.Rev, "created", existing.Rev() == "")
	return nil
}
