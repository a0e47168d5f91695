package store

import (
	"context"

	"github.com/websift/dedup-engine/pkg/config"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

// Pinger is implemented by backends that can report reachability for health
// checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open constructs the configured store backend. The adapter is built once by
// the process entry point and passed into each component; nothing in the
// engine opens connections on its own.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgresStore(ctx, cfg)
	case "mongo":
		return NewMongoStore(ctx, cfg)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown store backend %q", cfg.Backend)
	}
}
