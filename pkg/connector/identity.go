package connector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nimburion/couchconnector/pkg/store"
)

// Record is the generic field map exchanged with the host framework.
type Record map[string]interface{}

// idString converts an identifier value to the store's string form.
// It reports false for nil and for values with no natural string form.
func idString(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case []byte:
		return string(id), len(id) > 0
	case fmt.Stringer:
		s := id.String()
		return s, s != ""
	case int:
		return strconv.Itoa(id), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint:
		return strconv.FormatUint(uint64(id), 10), true
	case uint32:
		return strconv.FormatUint(uint64(id), 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

// deriveDocument builds the outgoing document for record. explicitID, when
// set, wins over the record's identifier field. Without an identifier the
// document carries no _id and the store assigns one. The identifier field
// itself is not stored; it lives in _id.
func deriveDocument(record Record, idField, explicitID string) store.Document {
	doc := make(store.Document, len(record)+1)
	for k, v := range record {
		if k == idField || k == store.FieldID || k == store.FieldRev {
			continue
		}
		doc[k] = v
	}

	id := explicitID
	if id == "" {
		id, _ = idString(record[idField])
	}
	if id != "" {
		doc[store.FieldID] = id
	}
	return doc
}

// recordFromDocument is the inverse of deriveDocument: _id moves back to
// the identifier field. _rev is kept so callers can write back safely.
func recordFromDocument(doc store.Document, idField string) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		if k == store.FieldID {
			continue
		}
		rec[k] = v
	}
	if id := doc.ID(); id != "" {
		rec[idField] = id
	}
	return rec
}

// reflectAssignedID returns a copy of record carrying the identity the
// store assigned. The caller's record is left untouched.
func reflectAssignedID(record Record, idField string, res store.PutResult) Record {
	out := make(Record, len(record)+2)
	for k, v := range record {
		out[k] = v
	}
	out[idField] = res.ID
	out[store.FieldRev] = res.Rev
	return out
}

// resolveForWrite fetches the current revision of id and sets it on doc so
// the store accepts a write over the existing document.
func resolveForWrite(ctx context.Context, h *Handle, id string, doc store.Document) error {
	current, err := h.Get(ctx, id)
	if err != nil {
		return err
	}
	doc[store.FieldID] = id
	doc[store.FieldRev] = current.Rev()
	return nil
}
