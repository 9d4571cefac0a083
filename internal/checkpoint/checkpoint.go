// Package checkpoint persists per-entity watermarks so that restarts
// resume from the last durably committed position. The store is the
// sole durable owner of the watermark; pipeline cycles never advance
// their in-memory cursor without a successful Set.
package checkpoint

import (
	"context"

	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// Store is the watermark persistence contract. Set must persist
// durably before returning success. An absent watermark means first
// run: the extractor selects from the beginning of time.
type Store interface {
	// Get returns the committed watermark and whether one exists.
	Get(ctx context.Context, entity models.EntityType) (models.Watermark, bool, error)
	// Set durably records the watermark for an entity.
	Set(ctx context.Context, entity models.EntityType, wm models.Watermark) error
	// Reset removes an entity's watermark. Operator-initiated only;
	// the next cycle reprocesses everything.
	Reset(ctx context.Context, entity models.EntityType) error
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

// New builds the configured backend.
func New(cfg config.CheckpointConfig) (Store, error) {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(cfg), nil
	case "file":
		return NewFileStore(cfg.FilePath), nil
	default:
		return nil, syncerrors.Newf(syncerrors.ErrorTypeConfig, "unknown checkpoint backend %q", cfg.Backend)
	}
}
