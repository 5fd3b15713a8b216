package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Aggregator rolls processed-event sums into margin views. Organization and
// customer levels fold in prorated subscription/invoice revenue.
type Aggregator interface {
	CustomerMargin(ctx context.Context, orgID, customerID snowflake.ID, window *Window) (Result, error)
	EventTypeMargin(ctx context.Context, orgID snowflake.ID, eventType string, window *Window) (Result, error)
	OrganizationMargin(ctx context.Context, orgID snowflake.ID, window *Window) (Result, error)

	// Grouped variants, one result per customer / event type. Customers with
	// subscription revenue but no events in the window are included.
	CustomerMargins(ctx context.Context, orgID snowflake.ID, window *Window) ([]CustomerResult, error)
	EventTypeMargins(ctx context.Context, orgID snowflake.ID, window *Window) ([]EventTypeResult, error)

	// Cost breakdowns across processed events, keyed by vendor and by
	// vendor/model.
	VendorCostBreakdown(ctx context.Context, orgID snowflake.ID, window *Window) (map[string]decimal.Decimal, error)
	ModelCostBreakdown(ctx context.Context, orgID snowflake.ID, window *Window) (map[string]decimal.Decimal, error)
}
