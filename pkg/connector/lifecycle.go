package connector

import (
	"context"
	"fmt"

	"github.com/nimburion/couchconnector/pkg/observability/tracing"
)

// Autoupdate creates the database when it does not exist, then syncs
// design documents. models is accepted for the host contract; no per-model
// setup is performed.
func (c *Connector) Autoupdate(ctx context.Context, models ...string) error {
	ctx, op := c.begin(ctx, tracing.SpanOperationDBAutoupdate, "")
	err := c.autoupdate(ctx, models)
	op.end(err)
	return err
}

func (c *Connector) autoupdate(ctx context.Context, models []string) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	exists, err := h.DatabaseExists(ctx)
	if err != nil {
		return fmt.Errorf("autoupdate: check database: %w", err)
	}
	if !exists {
		if err := h.CreateDatabase(ctx); err != nil {
			return fmt.Errorf("autoupdate: create database: %w", err)
		}
		c.log.Info("database created", "models", models)
	}
	return c.SaveDesignDocs(ctx)
}

// Automigrate destroys the database if it exists and creates it empty,
// then syncs design documents. All stored documents are lost.
func (c *Connector) Automigrate(ctx context.Context, models ...string) error {
	ctx, op := c.begin(ctx, tracing.SpanOperationDBMigrate, "")
	err := c.automigrate(ctx, models)
	op.end(err)
	return err
}

func (c *Connector) automigrate(ctx context.Context, models []string) error {
	h, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	exists, err := h.DatabaseExists(ctx)
	if err != nil {
		return fmt.Errorf("automigrate: check database: %w", err)
	}
	if exists {
		if err := h.DestroyDatabase(ctx); err != nil {
			return fmt.Errorf("automigrate: destroy database: %w", err)
		}
		c.log.Warn("database destroyed", "models", models)
	}
	if err := h.CreateDatabase(ctx); err != nil {
		return fmt.Errorf("automigrate: create database: %w", err)
	}
	c.log.Info("database created", "models", models)
	return c.SaveDesignDocs(ctx)
}
