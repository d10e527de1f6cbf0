package health

import (
	"context"
	"time"
)

// DocumentStore is the part of the connector a health check needs.
type DocumentStore interface {
	Ping(ctx context.Context) error
	Database() string
}

// DocumentStoreChecker reports whether the document store answers.
type DocumentStoreChecker struct {
	name    string
	store   DocumentStore
	timeout time.Duration
}

// NewDocumentStoreChecker creates a checker; a zero timeout means 5s.
func NewDocumentStoreChecker(name string, store DocumentStore, timeout time.Duration) *DocumentStoreChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &DocumentStoreChecker{
		name:    name,
		store:   store,
		timeout: timeout,
	}
}

// Check pings the store within the checker timeout.
func (c *DocumentStoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.store.Ping(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Metadata:  map[string]interface{}{"database": c.store.Database()},
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	result.Status = StatusHealthy
	result.Message = "OK"
	return result
}

// Name returns the name of the health check
func (c *DocumentStoreChecker) Name() string {
	return c.name
}
