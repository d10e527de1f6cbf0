package connector

import (
	"context"

	"github.com/nimburion/couchconnector/pkg/config"
	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/store"
	"github.com/nimburion/couchconnector/pkg/store/factory"
)

// NewFromConfig creates a Connector that dials the backend selected by
// cfg.Database.
func NewFromConfig(cfg *config.Config, log logger.Logger, models ...ModelDefinition) (*Connector, error) {
	if log == nil {
		log = logger.NewNop()
	}
	dbCfg := cfg.Database
	return New(Options{
		Database:   dbCfg.DatabaseName(),
		Models:     models,
		DesignDocs: dbCfg.DesignDocs,
		Logger:     log,
		Dial: func(context.Context) (store.DocumentStore, error) {
			return factory.NewDocumentStore(dbCfg, log)
		},
	})
}
