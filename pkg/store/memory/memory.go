// Package memory provides an in-process revisioned document store.
// Data is lost on restart. Safe for concurrent use.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nimburion/couchconnector/pkg/store"
)

var _ store.DocumentStore = (*Store)(nil)

// Store keeps databases and documents in memory. Revisions follow the
// CouchDB shape "<generation>-<hex>".
type Store struct {
	mu        sync.RWMutex
	databases map[string]map[string]store.Document
}

// New creates an empty Store.
func New() *Store {
	return &Store{databases: make(map[string]map[string]store.Document)}
}

// deepCopy round-trips through JSON so stored values have the same shapes
// a JSON document store would return.
func deepCopy(src store.Document) (store.Document, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("document is not JSON encodable: %w", err)
	}
	var dst store.Document
	if err := json.Unmarshal(raw, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func nextRev(current string) string {
	gen := 0
	if head, _, ok := strings.Cut(current, "-"); ok {
		gen, _ = strconv.Atoi(head)
	}
	return strconv.Itoa(gen+1) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Get returns a copy of the document.
func (s *Store) Get(_ context.Context, database, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[database]
	if !ok {
		return nil, fmt.Errorf("database %q: %w", database, store.ErrNotFound)
	}
	doc, ok := db[id]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", id, store.ErrNotFound)
	}
	return deepCopy(doc)
}

// Put stores doc, assigning an id when _id is absent. Writes to an existing
// document must carry its current _rev.
func (s *Store) Put(_ context.Context, database string, doc store.Document) (store.PutResult, error) {
	stored, err := deepCopy(doc)
	if err != nil {
		return store.PutResult{}, err
	}
	if stored == nil {
		stored = store.Document{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[database]
	if !ok {
		return store.PutResult{}, fmt.Errorf("database %q: %w", database, store.ErrNotFound)
	}

	id := stored.ID()
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	current, exists := db[id]
	switch {
	case exists && stored.Rev() != current.Rev():
		return store.PutResult{}, fmt.Errorf("document %q: %w", id, store.ErrConflict)
	case !exists && stored.Rev() != "":
		return store.PutResult{}, fmt.Errorf("document %q: %w", id, store.ErrConflict)
	}

	rev := nextRev(current.Rev())
	stored[store.FieldID] = id
	stored[store.FieldRev] = rev
	db[id] = stored
	return store.PutResult{ID: id, Rev: rev}, nil
}

// Delete removes the document when rev is current.
func (s *Store) Delete(_ context.Context, database, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[database]
	if !ok {
		return fmt.Errorf("database %q: %w", database, store.ErrNotFound)
	}
	current, ok := db[id]
	if !ok {
		return fmt.Errorf("document %q: %w", id, store.ErrNotFound)
	}
	if current.Rev() != rev {
		return fmt.Errorf("document %q: %w", id, store.ErrConflict)
	}
	delete(db, id)
	return nil
}

// DatabaseExists reports whether database has been created.
func (s *Store) DatabaseExists(_ context.Context, database string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.databases[database]
	return ok, nil
}

// CreateDatabase creates an empty database. An existing database yields
// store.ErrConflict.
func (s *Store) CreateDatabase(_ context.Context, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[database]; ok {
		return fmt.Errorf("database %q already exists: %w", database, store.ErrConflict)
	}
	s.databases[database] = make(map[string]store.Document)
	return nil
}

// DestroyDatabase drops database and its documents. A missing database
// yields store.ErrNotFound.
func (s *Store) DestroyDatabase(_ context.Context, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.databases[database]; !ok {
		return fmt.Errorf("database %q: %w", database, store.ErrNotFound)
	}
	delete(s.databases, database)
	return nil
}

// ListDatabases returns database names in sorted order.
func (s *Store) ListDatabases(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(_ context.Context) error { return nil }

// Close is a no-op. Data survives so a store can be shared across reconnects.
func (s *Store) Close() error { return nil }
