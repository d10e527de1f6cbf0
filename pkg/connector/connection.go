// Package connector maps generic model persistence operations onto a
// revisioned document store.
package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/observability/metrics"
	"github.com/nimburion/couchconnector/pkg/observability/tracing"
	"github.com/nimburion/couchconnector/pkg/store"
)

// DefaultIDField is the identifier field used for models without an explicit one.
const DefaultIDField = "id"

// State is the lifecycle state of the connector's connection.
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DialFunc opens the underlying document store.
type DialFunc func(ctx context.Context) (store.DocumentStore, error)

// ModelDefinition names a model and the record field holding its identifier.
type ModelDefinition struct {
	Name    string
	IDField string
}

// Options configures a Connector.
type Options struct {
	// Database is the database every operation targets. Required at connect time.
	Database string
	Models   []ModelDefinition
	// DesignDocs maps design document names (without the _design/ prefix)
	// to their definitions.
	DesignDocs map[string]map[string]interface{}
	Dial       DialFunc
	Logger     logger.Logger
}

// Connector is safe for concurrent use. It holds at most one store
// connection, opened lazily on first use.
type Connector struct {
	database   string
	models     map[string]ModelDefinition
	designDocs map[string]map[string]interface{}
	dial       DialFunc
	log        logger.Logger

	mu     sync.Mutex
	state  State
	handle *Handle
	// gen advances on every Disconnect; a dial started under an older
	// generation must not publish its handle.
	gen   uint64
	group singleflight.Group
}

// New creates a Connector. It does not connect.
func New(opts Options) (*Connector, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("%w: dial function is required", ErrConfiguration)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	models := make(map[string]ModelDefinition, len(opts.Models))
	for _, m := range opts.Models {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("%w: model name is required", ErrConfiguration)
		}
		if m.IDField == "" {
			m.IDField = DefaultIDField
		}
		models[m.Name] = m
	}

	return &Connector{
		database:   strings.TrimSpace(opts.Database),
		models:     models,
		designDocs: opts.DesignDocs,
		dial:       opts.Dial,
		log:        log.With("database", opts.Database),
	}, nil
}

// Database returns the configured database name.
func (c *Connector) Database() string { return c.database }

// State reports the current connection state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect returns the shared handle, dialing the store on first use.
// Concurrent callers share a single in-flight dial.
func (c *Connector) Connect(ctx context.Context) (*Handle, error) {
	if c.database == "" {
		return nil, fmt.Errorf("%w: database name is required", ErrConfiguration)
	}

	c.mu.Lock()
	if c.state == StateConnected {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("connect", func() (interface{}, error) {
		c.mu.Lock()
		if c.state == StateConnected {
			h := c.handle
			c.mu.Unlock()
			return h, nil
		}
		c.state = StateConnecting
		gen := c.gen
		c.mu.Unlock()

		// The dial is shared by every waiting caller, so one caller's
		// cancellation must not fail it for the rest.
		dialCtx, span := tracing.StartDocumentSpan(context.WithoutCancel(ctx), tracing.SpanOperationDBConnect, tracing.WithDatabase(c.database))
		st, err := c.dial(dialCtx)
		tracing.End(span, err)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			if err == nil {
				if cerr := st.Close(); cerr != nil {
					c.log.Warn("failed to close store dialed during disconnect", "error", cerr)
				}
			}
			return nil, ErrDisconnected
		}
		if err != nil {
			c.state = StateDisconnected
			return nil, fmt.Errorf("failed to connect to document store: %w", err)
		}
		c.handle = &Handle{store: st, database: c.database}
		c.state = StateConnected
		metrics.ConnectionOpened()
		c.log.Info("document store connected")
		return c.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Disconnect releases the handle. It succeeds when never connected. A dial
// still in flight is abandoned and its store closed once it returns.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.state = StateDisconnected
	c.gen++
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	metrics.ConnectionClosed()
	c.log.Info("document store disconnected")
	if err := h.store.Close(); err != nil {
		return fmt.Errorf("failed to close document store: %w", err)
	}
	return nil
}

// Ping connects if needed and checks store health.
func (c *Connector) Ping(ctx context.Context) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	return h.store.HealthCheck(ctx)
}

// IDField returns the identifier field of model.
func (c *Connector) IDField(model string) string {
	if m, ok := c.models[model]; ok {
		return m.IDField
	}
	return DefaultIDField
}

// Handle binds the store connection to the configured database.
type Handle struct {
	store    store.DocumentStore
	database string
}

// Database returns the bound database name.
func (h *Handle) Database() string { return h.database }

// Get fetches a document by id.
func (h *Handle) Get(ctx context.Context, id string) (store.Document, error) {
	return h.store.Get(ctx, h.database, id)
}

// Put writes a document. A document without _id gets a store-assigned id.
func (h *Handle) Put(ctx context.Context, doc store.Document) (store.PutResult, error) {
	return h.store.Put(ctx, h.database, doc)
}

// Delete removes revision rev of document id.
func (h *Handle) Delete(ctx context.Context, id, rev string) error {
	return h.store.Delete(ctx, h.database, id, rev)
}

// DatabaseExists reports whether the bound database exists.
func (h *Handle) DatabaseExists(ctx context.Context) (bool, error) {
	return h.store.DatabaseExists(ctx, h.database)
}

// CreateDatabase creates the bound database. An existing database is a
// conflict.
func (h *Handle) CreateDatabase(ctx context.Context) error {
	return h.store.CreateDatabase(ctx, h.database)
}

// DestroyDatabase deletes the bound database and all of its documents.
func (h *Handle) DestroyDatabase(ctx context.Context) error {
	return h.store.DestroyDatabase(ctx, h.database)
}
