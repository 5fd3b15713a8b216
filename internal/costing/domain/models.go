package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RateSource records how a cost entry's amount was derived.
const (
	RateSourceVendorRate  = "vendor_rate"
	RateSourceRawFallback = "raw_fallback"
	RateSourceMissingRate = "missing_rate"
)

// EventKind discriminates which intake a cost entry belongs to.
const (
	EventKindUsage     = "usage"
	EventKindTelemetry = "telemetry"
)

// VendorCostLine is one raw vendor-cost item as supplied by the caller. Unit
// counts and the precomputed amount are both optional; validation happens at
// the ingestion boundary, not here.
type VendorCostLine struct {
	Vendor         string           `json:"vendor_name"`
	Model          string           `json:"model_name,omitempty"`
	InputUnits     int64            `json:"input_units,omitempty"`
	OutputUnits    int64            `json:"output_units,omitempty"`
	UnitCount      int64            `json:"unit_count,omitempty"`
	UnitType       string           `json:"unit_type,omitempty"`
	RawAmountCents *decimal.Decimal `json:"amount_cents,omitempty"`
}

// CostEntry is one resolved cost line. Entries are written once, atomically
// with the costing step, and never mutated.
type CostEntry struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID   snowflake.ID `gorm:"not null;index" json:"event_id"`
	EventKind string       `gorm:"not null;default:usage" json:"event_kind"`

	Vendor string `gorm:"column:vendor_name;not null" json:"vendor_name"`
	Model  string `gorm:"column:model_name" json:"model_name,omitempty"`

	AmountCents decimal.Decimal `gorm:"type:numeric;not null" json:"amount_cents"`
	UnitCount   int64           `gorm:"not null;default:0" json:"unit_count"`
	UnitType    string          `json:"unit_type,omitempty"`

	// Metadata carries the rate_source tag and the rates used, so any amount
	// can be audited after the fact.
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CostEntry) TableName() string { return "cost_entries" }
