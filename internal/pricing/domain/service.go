package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrDriftNotFound = errors.New("price_drift_not_found")
	ErrDriftResolved = errors.New("price_drift_already_resolved")
	// ErrStaleDrift means the platform rate changed after the drift was
	// detected; the drift must be re-detected before it can be applied.
	ErrStaleDrift = errors.New("price_drift_stale")
)

// CatalogSource fetches the upstream pricing catalog keyed by model name.
type CatalogSource interface {
	Fetch(ctx context.Context) (map[string]CatalogEntry, error)
}

type Service interface {
	// Sync pulls the catalog and reconciles it against the platform-wide rate
	// table: new models create rates, diverged models record pending drifts,
	// and models absent from the catalog are deactivated, never deleted.
	Sync(ctx context.Context) (SyncReport, error)

	ListPending(ctx context.Context) ([]PriceDrift, error)

	// Apply replaces the platform rate with the drift's new rates, retiring the
	// old row so historical costing stays reproducible.
	Apply(ctx context.Context, driftID snowflake.ID) (*PriceDrift, error)

	Ignore(ctx context.Context, driftID snowflake.ID) (*PriceDrift, error)
}
