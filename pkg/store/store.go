package store

import (
	"context"
	"errors"
)

// Reserved document fields managed by the document store.
const (
	FieldID  = "_id"
	FieldRev = "_rev"

	// DesignDocPrefix is the reserved identifier namespace for design documents.
	DesignDocPrefix = "_design/"
)

var (
	// ErrNotFound is returned when the requested document or database does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write presents a missing or stale revision.
	ErrConflict = errors.New("document update conflict")
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Document is the stored form of a record: arbitrary fields plus _id and _rev.
type Document map[string]interface{}

// ID returns the store identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Rev returns the revision token, or "" when unset.
func (d Document) Rev() string {
	rev, _ := d[FieldRev].(string)
	return rev
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// PutResult is the identity the store assigned to a successful write.
type PutResult struct {
	ID  string
	Rev string
}

// DocumentStore is the capability a revisioned document database exposes.
// Get and Delete return ErrNotFound for missing documents; Put and Delete
// return ErrConflict when the presented revision is not the current one.
// A Put without _id lets the store assign the identifier.
type DocumentStore interface {
	Adapter

	Get(ctx context.Context, database, id string) (Document, error)
	Put(ctx context.Context, database string, doc Document) (PutResult, error)
	Delete(ctx context.Context, database, id, rev string) error

	DatabaseExists(ctx context.Context, database string) (bool, error)
	CreateDatabase(ctx context.Context, database string) error
	DestroyDatabase(ctx context.Context, database string) error
	ListDatabases(ctx context.Context) ([]string, error)
}
