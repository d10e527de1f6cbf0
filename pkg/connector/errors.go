package connector

import (
	"errors"

	"github.com/nimburion/couchconnector/pkg/store"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrConflict is returned when a write presents a stale or missing revision.
	ErrConflict = store.ErrConflict
	// ErrConfiguration is returned by Connect when no database name is configured.
	ErrConfiguration = errors.New("connector configuration error")
	// ErrDisconnected is returned by Connect when Disconnect runs while the
	// dial is still in flight.
	ErrDisconnected = errors.New("connector disconnected during connect")
	// ErrNotImplemented is returned by operations this connector does not support.
	ErrNotImplemented = errors.New("operation not implemented")
)
