// Package factory selects the document store backend from configuration.
package factory

import (
	"fmt"
	"strings"

	"github.com/nimburion/couchconnector/pkg/config"
	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/store"
	"github.com/nimburion/couchconnector/pkg/store/couchdb"
	"github.com/nimburion/couchconnector/pkg/store/memory"
)

// NewDocumentStore selects and initializes the document store for cfg.Type.
// The memory backend starts empty on every call.
func NewDocumentStore(cfg config.DatabaseConfig, log logger.Logger) (store.DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeCouchDB:
		return couchdb.NewAdapter(couchdb.Config{
			URL:               cfg.ResolvedURL(),
			Username:          cfg.Username,
			Password:          cfg.Password,
			MaxConns:          cfg.MaxConns,
			OperationTimeout:  cfg.OperationTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			BreakerThreshold:  cfg.BreakerThreshold,
			BreakerCooldown:   cfg.BreakerCooldown,
		}, log)
	case config.DatabaseTypeMemory:
		log.Info("using in-memory document store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: couchdb, memory)", cfg.Type)
	}
}
