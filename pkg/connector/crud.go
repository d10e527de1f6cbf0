package connector

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/couchconnector/pkg/observability/tracing"
	"github.com/nimburion/couchconnector/pkg/store"
)

// bulkConcurrency bounds the per-key fan-out of All and DestroyAll.
const bulkConcurrency = 16

// DestroyResult reports how many documents a delete removed.
type DestroyResult struct {
	Count int `json:"count" yaml:"count"`
}

// Create stores record as a new document. When the record has no identifier
// the store assigns one. The returned record carries the final identifier
// and revision; the input is not modified.
func (c *Connector) Create(ctx context.Context, model string, record Record) (Record, store.PutResult, error) {
	ctx, op := c.begin(ctx, tracing.SpanOperationDocPut, model)
	out, res, err := c.create(ctx, model, record)
	op.end(err)
	return out, res, err
}

func (c *Connector) create(ctx context.Context, model string, record Record) (Record, store.PutResult, error) {
	h, err := c.Connect(ctx)
	if err != nil {
		return nil, store.PutResult{}, err
	}
	idField := c.IDField(model)
	res, err := h.Put(ctx, deriveDocument(record, idField, ""))
	if err != nil {
		return nil, store.PutResult{}, fmt.Errorf("create %s: %w", model, err)
	}
	return reflectAssignedID(record, idField, res), res, nil
}

// Save writes record at its identifier, creating the document or
// overwriting it. A _rev carried by the record is used as-is, so a stale
// one surfaces ErrConflict; otherwise the current revision is looked up.
// Records without an identifier are created with a store-assigned id.
func (c *Connector) Save(ctx context.Context, model string, record Record) error {
	ctx, op := c.begin(ctx, tracing.SpanOperationDocPut, model)
	err := c.save(ctx, model, record)
	op.end(err)
	return err
}

func (c *Connector) save(ctx context.Context, model string, record Record) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	doc := deriveDocument(record, c.IDField(model), "")
	if id := doc.ID(); id != "" {
		if rev, ok := record[store.FieldRev].(string); ok && rev != "" {
			doc[store.FieldRev] = rev
		} else if err := resolveForWrite(ctx, h, id, doc); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("save %s %s: %w", model, id, err)
		}
	}
	if _, err := h.Put(ctx, doc); err != nil {
		return fmt.Errorf("save %s: %w", model, err)
	}
	return nil
}

// FindByID returns the record stored under id.
func (c *Connector) FindByID(ctx context.Context, model, id string) (Record, error) {
	ctx, op := c.begin(ctx, tracing.SpanOperationDocGet, model, tracing.WithDocumentID(id))
	rec, err := c.findByID(ctx, model, id)
	op.end(err)
	return rec, err
}

func (c *Connector) findByID(ctx context.Context, model, id string) (Record, error) {
	h, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := h.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", model, id, err)
	}
	return recordFromDocument(doc, c.IDField(model)), nil
}

// ReplaceByID replaces every field of document id with record, keeping only
// the current revision, and returns the stored result. A missing document
// fails with ErrNotFound before any write.
func (c *Connector) ReplaceByID(ctx context.Context, model, id string, record Record) (Record, error) {
	ctx, op := c.begin(ctx, tracing.SpanOperationDocPut, model, tracing.WithDocumentID(id))
	rec, err := c.replaceByID(ctx, model, id, record)
	op.end(err)
	return rec, err
}

func (c *Connector) replaceByID(ctx context.Context, model, id string, record Record) (Record, error) {
	h, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	idField := c.IDField(model)
	doc := deriveDocument(record, idField, id)
	if err := resolveForWrite(ctx, h, id, doc); err != nil {
		return nil, fmt.Errorf("replace %s %s: %w", model, id, err)
	}
	if _, err := h.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("replace %s %s: %w", model, id, err)
	}
	fresh, err := h.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replace %s %s: reload: %w", model, id, err)
	}
	return recordFromDocument(fresh, idField), nil
}

// DestroyByID deletes the current revision of document id.
// A missing document fails with ErrNotFound.
func (c *Connector) DestroyByID(ctx context.Context, model, id string) error {
	ctx, op := c.begin(ctx, tracing.SpanOperationDocDelete, model, tracing.WithDocumentID(id))
	err := c.destroyByID(ctx, model, id)
	op.end(err)
	return err
}

func (c *Connector) destroyByID(ctx context.Context, model, id string) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	current, err := h.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("destroy %s %s: %w", model, id, err)
	}
	if err := h.Delete(ctx, current.ID(), current.Rev()); err != nil {
		return fmt.Errorf("destroy %s %s: %w", model, id, err)
	}
	return nil
}

// Destroy is the best-effort form of DestroyByID: any failure reports a
// count of zero instead of an error.
func (c *Connector) Destroy(ctx context.Context, model, id string) DestroyResult {
	if err := c.DestroyByID(ctx, model, id); err != nil {
		c.logSkipped(ctx, "destroy", model, id, err)
		return DestroyResult{Count: 0}
	}
	return DestroyResult{Count: 1}
}

// All returns the records selected by an identifier-only filter, in key
// order. Keys that fail to load are skipped. A filter without Where, or one
// no keys can be derived from, yields an empty result; no scan is made.
func (c *Connector) All(ctx context.Context, model string, filter Filter) ([]Record, error) {
	if filter.Where == nil {
		return []Record{}, nil
	}
	idField := c.IDField(model)
	keys := KeysFromFilter(filter.Where, idField)
	if len(keys) == 0 {
		return []Record{}, nil
	}

	ctx, op := c.begin(ctx, tracing.SpanOperationDocBulkGet, model, tracing.WithKeyCount(len(keys)))
	h, err := c.Connect(ctx)
	if err != nil {
		op.end(err)
		return nil, err
	}

	found := make([]store.Document, len(keys))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			doc, err := h.Get(ctx, key)
			if err != nil {
				c.logSkipped(ctx, "all", model, key, err)
				return nil
			}
			found[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	records := make([]Record, 0, len(keys))
	for _, doc := range found {
		if doc != nil {
			records = append(records, recordFromDocument(doc, idField))
		}
	}
	op.end(nil)
	return records, nil
}

// DestroyAll deletes the documents selected by an identifier-only filter
// and reports how many were removed. Per-key failures are skipped.
func (c *Connector) DestroyAll(ctx context.Context, model string, filter Filter) (DestroyResult, error) {
	keys := KeysFromFilter(filter.Where, c.IDField(model))
	if len(keys) == 0 {
		return DestroyResult{}, nil
	}

	ctx, op := c.begin(ctx, tracing.SpanOperationDocBulkDel, model, tracing.WithKeyCount(len(keys)))
	if _, err := c.Connect(ctx); err != nil {
		op.end(err)
		return DestroyResult{}, err
	}

	deleted := make([]bool, len(keys))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := c.destroyByID(ctx, model, key); err != nil {
				c.logSkipped(ctx, "destroyAll", model, key, err)
				return nil
			}
			deleted[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var result DestroyResult
	for _, ok := range deleted {
		if ok {
			result.Count++
		}
	}
	op.end(nil)
	return result, nil
}

// Count is not supported.
func (c *Connector) Count(ctx context.Context, model string, where Where) (int, error) {
	return 0, fmt.Errorf("count %s: %w", model, ErrNotImplemented)
}

// UpdateAttributes is not supported.
func (c *Connector) UpdateAttributes(ctx context.Context, model, id string, data Record) (Record, error) {
	return nil, fmt.Errorf("updateAttributes %s: %w", model, ErrNotImplemented)
}

// Update is not supported.
func (c *Connector) Update(ctx context.Context, model string, where Where, data Record) (int, error) {
	return 0, fmt.Errorf("update %s: %w", model, ErrNotImplemented)
}

func (c *Connector) logSkipped(ctx context.Context, op, model, id string, err error) {
	log := c.log.WithContext(ctx)
	if errors.Is(err, ErrNotFound) {
		log.Debug("document skipped", "operation", op, "model", model, "id", id)
		return
	}
	log.Warn("document skipped", "operation", op, "model", model, "id", id, "error", err)
}
