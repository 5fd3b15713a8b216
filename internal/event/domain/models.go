package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusCustomerLinked Status = "customer_linked"
	StatusProcessed      Status = "processed"
	StatusFailed         Status = "failed"
)

// Terminal reports whether the state machine is done with this status.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Event is one billable usage occurrence. It is created once by ingestion and
// mutated only by the state machine. TotalCostCents and MarginCents stay nil
// until the status reaches processed.
type Event struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;uniqueIndex:idx_events_org_idem;index" json:"organization_id"`

	// IdempotencyKey is caller-supplied, immutable, and never reused within an
	// organization.
	IdempotencyKey string `gorm:"not null;uniqueIndex:idx_events_org_idem" json:"idempotency_key"`

	CustomerExternalID string        `gorm:"not null" json:"customer_external_id"`
	CustomerName       string        `json:"customer_name,omitempty"`
	CustomerID         *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`

	EventType    string `gorm:"not null;index" json:"event_type"`
	RevenueCents int64  `gorm:"not null" json:"revenue_cents"`

	VendorCostsRaw datatypes.JSONSlice[costingdomain.VendorCostLine] `gorm:"type:jsonb" json:"vendor_costs_raw,omitempty"`
	Metadata       datatypes.JSONMap                                 `gorm:"type:jsonb" json:"metadata,omitempty"`

	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	Status     Status    `gorm:"not null;default:pending;index" json:"status"`

	TotalCostCents *decimal.Decimal `gorm:"type:numeric" json:"total_cost_cents,omitempty"`
	MarginCents    *decimal.Decimal `gorm:"type:numeric" json:"margin_cents,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// TelemetryEvent is the telemetry intake variant: same lifecycle, separate
// table, processed with the telemetry costing policy in a single transaction.
type TelemetryEvent struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;uniqueIndex:idx_telemetry_events_org_idem;index" json:"organization_id"`

	IdempotencyKey string `gorm:"not null;uniqueIndex:idx_telemetry_events_org_idem" json:"idempotency_key"`

	CustomerExternalID string        `gorm:"not null" json:"customer_external_id"`
	CustomerName       string        `json:"customer_name,omitempty"`
	CustomerID         *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`

	EventType    string `gorm:"not null;index" json:"event_type"`
	RevenueCents int64  `gorm:"not null" json:"revenue_cents"`

	VendorCostsRaw datatypes.JSONSlice[costingdomain.VendorCostLine] `gorm:"type:jsonb" json:"vendor_costs_raw,omitempty"`
	Metadata       datatypes.JSONMap                                 `gorm:"type:jsonb" json:"metadata,omitempty"`

	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	Status     Status    `gorm:"not null;default:pending;index" json:"status"`

	TotalCostCents *decimal.Decimal `gorm:"type:numeric" json:"total_cost_cents,omitempty"`
	MarginCents    *decimal.Decimal `gorm:"type:numeric" json:"margin_cents,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TelemetryEvent) TableName() string { return "telemetry_events" }
