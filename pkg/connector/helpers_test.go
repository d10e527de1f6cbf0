package connector

import (
	"context"
	"sync"
	"testing"

	"github.com/nimburion/couchconnector/pkg/store"
	"github.com/nimburion/couchconnector/pkg/store/memory"
)

const testDB = "crm"

// recordingStore wraps the memory store, counting calls and injecting
// failures per document id.
type recordingStore struct {
	*memory.Store

	mu      sync.Mutex
	gets    int
	puts    int
	deletes int
	closes  int
	failGet map[string]error
	failPut map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		Store:   memory.New(),
		failGet: map[string]error{},
		failPut: map[string]error{},
	}
}

func (s *recordingStore) Get(ctx context.Context, database, id string) (store.Document, error) {
	s.mu.Lock()
	s.gets++
	err := s.failGet[id]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, database, id)
}

func (s *recordingStore) Put(ctx context.Context, database string, doc store.Document) (store.PutResult, error) {
	s.mu.Lock()
	s.puts++
	err := s.failPut[doc.ID()]
	s.mu.Unlock()
	if err != nil {
		return store.PutResult{}, err
	}
	return s.Store.Put(ctx, database, doc)
}

func (s *recordingStore) Delete(ctx context.Context, database, id, rev string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.Store.Delete(ctx, database, id, rev)
}

func (s *recordingStore) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return s.Store.Close()
}

func (s *recordingStore) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *recordingStore) calls() (gets, puts, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts, s.deletes
}

func (s *recordingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets, s.puts, s.deletes = 0, 0, 0
}

// newTestConnector returns a connector over a recording store whose test
// database already exists.
func newTestConnector(t *testing.T, mutate ...func(*Options)) (*Connector, *recordingStore) {
	t.Helper()
	st := newRecordingStore()
	if err := st.CreateDatabase(context.Background(), testDB); err != nil {
		t.Fatalf("create database: %v", err)
	}

	opts := Options{
		Database: testDB,
		Models:   []ModelDefinition{{Name: "Customer"}, {Name: "Order", IDField: "orderNo"}},
		Dial: func(context.Context) (store.DocumentStore, error) {
			return st, nil
		},
	}
	for _, m := range mutate {
		m(&opts)
	}

	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c, st
}
