package couchdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/resilience"
	"github.com/nimburion/couchconnector/pkg/store"
)

type mockLogger struct{}

func (m *mockLogger) Debug(string, ...any)                      {}
func (m *mockLogger) Info(string, ...any)                       {}
func (m *mockLogger) Warn(string, ...any)                       {}
func (m *mockLogger) Error(string, ...any)                      {}
func (m *mockLogger) With(...any) logger.Logger                 { return m }
func (m *mockLogger) WithContext(context.Context) logger.Logger { return m }

// newTestAdapter starts a server that answers the welcome endpoint and
// delegates everything else to handler.
func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"couchdb":"Welcome","version":"3.3.3"}`)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(Config{URL: srv.URL, MaxConns: 2, OperationTimeout: time.Second}, &mockLogger{})
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	return adapter
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewAdapter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "empty url", url: "", wantErr: "couchdb URL is required"},
		{name: "missing scheme", url: "localhost:5984", wantErr: "invalid couchdb URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter(Config{URL: tt.url}, &mockLogger{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewAdapter_PingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewAdapter(Config{URL: srv.URL, OperationTimeout: time.Second}, &mockLogger{})
	if err == nil {
		t.Fatal("expected error when ping fails")
	}
}

func TestNewAdapter_UsesURLCredentials(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		writeJSON(w, http.StatusOK, `{"couchdb":"Welcome"}`)
	}))
	defer srv.Close()

	withCreds := strings.Replace(srv.URL, "http://", "http://admin:s3cret@", 1)
	adapter, err := NewAdapter(Config{URL: withCreds, OperationTimeout: time.Second}, &mockLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "admin" || gotPass != "s3cret" {
		t.Errorf("expected basic auth admin/s3cret, got %q/%q", gotUser, gotPass)
	}
	if strings.Contains(adapter.baseURL, "s3cret") {
		t.Errorf("credentials must not stay in base URL: %s", adapter.baseURL)
	}
}

func TestGet(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "couchconnector/") {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.EscapedPath() {
		case "/crm/c-1":
			writeJSON(w, http.StatusOK, `{"_id":"c-1","_rev":"1-abc","name":"Ada"}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"error":"not_found","reason":"missing"}`)
		}
	})
	ctx := context.Background()

	doc, err := adapter.Get(ctx, "crm", "c-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.ID() != "c-1" || doc.Rev() != "1-abc" || doc["name"] != "Ada" {
		t.Errorf("unexpected document %v", doc)
	}

	_, err = adapter.Get(ctx, "crm", "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.Code != "not_found" || statusErr.Reason != "missing" {
		t.Errorf("unexpected status error %+v", statusErr)
	}
}

func TestPut_ByIDAndAssigned(t *testing.T) {
	var calls []string
	var lastBody map[string]interface{}
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.EscapedPath())
		lastBody = map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&lastBody)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		switch r.Method {
		case http.MethodPut:
			writeJSON(w, http.StatusCreated, `{"ok":true,"id":"c-1","rev":"2-def"}`)
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, `{"ok":true,"id":"generated","rev":"1-aaa"}`)
		}
	})
	ctx := context.Background()

	res, err := adapter.Put(ctx, "crm", store.Document{"_id": "c-1", "_rev": "1-abc", "name": "Ada"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if res.ID != "c-1" || res.Rev != "2-def" {
		t.Errorf("unexpected result %+v", res)
	}
	if lastBody["_rev"] != "1-abc" {
		t.Errorf("expected _rev in body, got %v", lastBody)
	}

	res, err = adapter.Put(ctx, "crm", store.Document{"name": "Bob"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if res.ID != "generated" {
		t.Errorf("expected server-assigned id, got %+v", res)
	}

	want := []string{"PUT /crm/c-1", "POST /crm"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestPut_PathEscaping(t *testing.T) {
	var paths []string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		writeJSON(w, http.StatusCreated, `{"ok":true,"id":"x","rev":"1-x"}`)
	})
	ctx := context.Background()

	if _, err := adapter.Put(ctx, "crm", store.Document{"_id": "_design/users"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := adapter.Put(ctx, "crm", store.Document{"_id": "a/b"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if paths[0] != "/crm/_design/users" {
		t.Errorf("design doc path = %s", paths[0])
	}
	if paths[1] != "/crm/a%2Fb" {
		t.Errorf("escaped id path = %s", paths[1])
	}
}

func TestPut_Conflict(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, `{"error":"conflict","reason":"Document update conflict."}`)
	})
	_, err := adapter.Put(context.Background(), "crm", store.Document{"_id": "c-1", "_rev": "1-stale"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDelete_SendsRevision(t *testing.T) {
	var gotRev string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		gotRev = r.URL.Query().Get("rev")
		writeJSON(w, http.StatusOK, `{"ok":true,"id":"c-1","rev":"3-zzz"}`)
	})
	if err := adapter.Delete(context.Background(), "crm", "c-1", "2-def"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gotRev != "2-def" {
		t.Errorf("expected rev 2-def, got %q", gotRev)
	}
}

func TestDatabaseLifecycle(t *testing.T) {
	existing := map[string]bool{"crm": true}
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		switch {
		case r.Method == http.MethodGet && name == "_all_dbs":
			writeJSON(w, http.StatusOK, `["_users","crm"]`)
		case r.Method == http.MethodHead:
			if existing[name] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			if existing[name] {
				writeJSON(w, http.StatusPreconditionFailed, `{"error":"file_exists","reason":"The database could not be created, the file already exists."}`)
				return
			}
			existing[name] = true
			writeJSON(w, http.StatusCreated, `{"ok":true}`)
		case r.Method == http.MethodDelete:
			if !existing[name] {
				writeJSON(w, http.StatusNotFound, `{"error":"not_found","reason":"Database does not exist."}`)
				return
			}
			delete(existing, name)
			writeJSON(w, http.StatusOK, `{"ok":true}`)
		}
	})
	ctx := context.Background()

	ok, err := adapter.DatabaseExists(ctx, "crm")
	if err != nil || !ok {
		t.Fatalf("expected crm to exist, got %v %v", ok, err)
	}
	ok, err = adapter.DatabaseExists(ctx, "orders")
	if err != nil || ok {
		t.Fatalf("expected orders to be absent, got %v %v", ok, err)
	}
	if err := adapter.CreateDatabase(ctx, "orders"); err != nil {
		t.Fatalf("CreateDatabase() error = %v", err)
	}
	if err := adapter.CreateDatabase(ctx, "orders"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for existing database, got %v", err)
	}
	if err := adapter.DestroyDatabase(ctx, "orders"); err != nil {
		t.Fatalf("DestroyDatabase() error = %v", err)
	}
	if err := adapter.DestroyDatabase(ctx, "orders"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	names, err := adapter.ListDatabases(ctx)
	if err != nil {
		t.Fatalf("ListDatabases() error = %v", err)
	}
	if len(names) != 2 || names[1] != "crm" {
		t.Errorf("unexpected databases %v", names)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_up" {
			http.NotFound(w, r)
			return
		}
		if healthy {
			writeJSON(w, http.StatusOK, `{"status":"ok"}`)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, `{"status":"maintenance_mode"}`)
	})

	if err := adapter.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	healthy = false
	if err := adapter.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}

func TestRateLimiter_Configured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"couchdb":"Welcome"}`)
	}))
	defer srv.Close()

	adapter, err := NewAdapter(Config{URL: srv.URL, RequestsPerSecond: 0.5, OperationTimeout: time.Second}, &mockLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.limiter == nil {
		t.Fatal("expected limiter to be configured")
	}

	// The ping consumed the single burst token; a cancelled context must fail fast.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := adapter.Ping(ctx); err == nil {
		t.Fatal("expected rate limiter wait to fail on cancelled context")
	}
}

func TestBreaker_OpensOnServerErrorsOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `{"couchdb":"Welcome"}`)
		case "/crm/missing":
			writeJSON(w, http.StatusNotFound, `{"error":"not_found","reason":"missing"}`)
		default:
			hits.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"unavailable","reason":"maintenance"}`)
		}
	}))
	defer srv.Close()

	adapter, err := NewAdapter(Config{
		URL:              srv.URL,
		OperationTimeout: time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := adapter.Get(ctx, "crm", "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		var statusErr *StatusError
		if _, err := adapter.Get(ctx, "crm", "busy"); !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
	}
	_, err = adapter.Get(ctx, "crm", "busy")
	if !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 requests to reach the server, got %d", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	if err := adapter.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
