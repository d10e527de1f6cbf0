package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/observability/metrics"
	"github.com/nimburion/couchconnector/pkg/resilience"
	"github.com/nimburion/couchconnector/pkg/store"
	"github.com/nimburion/couchconnector/pkg/version"
)

var _ store.DocumentStore = (*Adapter)(nil)

// Adapter provides CouchDB connectivity over its HTTP API.
type Adapter struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	logger   logger.Logger
	config   Config
}

// Config holds CouchDB adapter configuration.
// Credentials embedded in URL are used when Username is empty.
type Config struct {
	URL               string
	Username          string
	Password          string
	MaxConns          int
	OperationTimeout  time.Duration
	RequestsPerSecond float64
	// BreakerThreshold consecutive transport or 5xx failures open the
	// breaker for BreakerCooldown. Zero disables it.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// StatusError is returned for non-2xx responses. It unwraps to
// store.ErrNotFound for 404 and store.ErrConflict for 409/412.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("couchdb %s %s: status %d: %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("couchdb %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap maps the HTTP status onto the store sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return store.ErrConflict
	default:
		return nil
	}
}

// NewAdapter creates a CouchDB adapter and verifies the server answers.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("couchdb URL is required")
	}
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse couchdb URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid couchdb URL: %s", cfg.URL)
	}
	if cfg.Username == "" && u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""

	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConns,
		MaxConnsPerHost:     cfg.MaxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	adapter := &Adapter{
		baseURL:  strings.TrimRight(u.String(), "/"),
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.OperationTimeout,
		},
		logger: log,
		config: cfg,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		adapter.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.BreakerThreshold > 0 {
		adapter.breaker = resilience.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, isServerFailure)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := adapter.Ping(ctx); err != nil {
		adapter.Close()
		return nil, fmt.Errorf("failed to ping couchdb: %w", err)
	}

	log.Info("CouchDB connection established",
		"url", adapter.baseURL,
		"max_conns", cfg.MaxConns,
		"operation_timeout", cfg.OperationTimeout,
	)
	return adapter, nil
}

// Ping verifies the CouchDB server answers its welcome endpoint.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, "/", nil, nil)
}

// HealthCheck verifies the node reports itself up.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.do(hcCtx, http.MethodGet, "/_up", nil, nil); err != nil {
		a.logger.Error("CouchDB health check failed", "error", err)
		return fmt.Errorf("couchdb health check failed: %w", err)
	}
	return nil
}

// Get fetches a document by id.
func (a *Adapter) Get(ctx context.Context, database, id string) (store.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("document id is required")
	}
	var doc store.Document
	if err := a.do(ctx, http.MethodGet, docPath(database, id), nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type writeResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// Put writes doc. With an _id the document is PUT at that id (its _rev must be
// current when the document exists); without one it is POSTed and the server
// assigns the id.
func (a *Adapter) Put(ctx context.Context, database string, doc store.Document) (store.PutResult, error) {
	var (
		method = http.MethodPost
		path   = dbPath(database)
	)
	if id := doc.ID(); id != "" {
		method = http.MethodPut
		path = docPath(database, id)
	}

	var out writeResponse
	if err := a.do(ctx, method, path, doc, &out); err != nil {
		return store.PutResult{}, err
	}
	return store.PutResult{ID: out.ID, Rev: out.Rev}, nil
}

// Delete removes the document revision rev.
func (a *Adapter) Delete(ctx context.Context, database, id, rev string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}
	path := docPath(database, id) + "?rev=" + url.QueryEscape(rev)
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

// DatabaseExists reports whether database exists.
func (a *Adapter) DatabaseExists(ctx context.Context, database string) (bool, error) {
	err := a.do(ctx, http.MethodHead, dbPath(database), nil, nil)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDatabase creates database. An existing database yields store.ErrConflict.
func (a *Adapter) CreateDatabase(ctx context.Context, database string) error {
	if err := a.do(ctx, http.MethodPut, dbPath(database), nil, nil); err != nil {
		return err
	}
	a.logger.Info("CouchDB database created", "database", database)
	return nil
}

// DestroyDatabase deletes database and every document in it.
func (a *Adapter) DestroyDatabase(ctx context.Context, database string) error {
	if err := a.do(ctx, http.MethodDelete, dbPath(database), nil, nil); err != nil {
		return err
	}
	a.logger.Info("CouchDB database destroyed", "database", database)
	return nil
}

// ListDatabases returns every database name on the server.
func (a *Adapter) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	if err := a.do(ctx, http.MethodGet, "/_all_dbs", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Close gracefully closes idle HTTP connections.
func (a *Adapter) Close() error {
	a.logger.Info("closing CouchDB connections")
	if transport, ok := a.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// isServerFailure reports whether err points at an unhealthy node rather than
// at the request. 4xx answers are the server working as intended.
func isServerFailure(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return err != nil
}

func (a *Adapter) do(ctx context.Context, method, path string, in, out interface{}) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("couchdb rate limiter: %w", err)
		}
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	err := a.breaker.Do(ctx, func(ctx context.Context) error {
		return a.roundTrip(ctx, method, path, payload, out)
	})
	if errors.Is(err, resilience.ErrOpen) {
		metrics.BreakerRejected()
		return fmt.Errorf("couchdb %s %s: %w", method, path, err)
	}
	return err
}

func (a *Adapter) roundTrip(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if method != http.MethodHead {
			raw, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(raw, &payload) == nil {
				statusErr.Code = payload.Error
				statusErr.Reason = payload.Reason
			} else {
				statusErr.Reason = strings.TrimSpace(string(raw))
			}
		}
		return statusErr
	}

	if out == nil || method == http.MethodHead {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func dbPath(database string) string {
	return "/" + url.PathEscape(database)
}

// docPath keeps the slash of design document ids, which CouchDB requires unescaped.
func docPath(database, id string) string {
	if name, ok := strings.CutPrefix(id, store.DesignDocPrefix); ok {
		return dbPath(database) + "/" + store.DesignDocPrefix + url.PathEscape(name)
	}
	return dbPath(database) + "/" + url.PathEscape(id)
}
