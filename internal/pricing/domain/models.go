package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DriftStatus string

const (
	DriftPending DriftStatus = "pending"
	DriftApplied DriftStatus = "applied"
	DriftIgnored DriftStatus = "ignored"
)

// PriceDrift records one detected divergence between a platform rate and the
// upstream catalog. At most one pending drift exists per (vendor, model); a
// re-detection updates the pending row in place instead of stacking a second
// one.
type PriceDrift struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	Vendor string `gorm:"column:vendor_name;not null" json:"vendor_name"`
	Model  string `gorm:"column:model_name;not null" json:"model_name"`

	OldInputRatePer1K  decimal.Decimal `gorm:"column:old_input_rate_per_1k;type:numeric;not null" json:"old_input_rate_per_1k"`
	OldOutputRatePer1K decimal.Decimal `gorm:"column:old_output_rate_per_1k;type:numeric;not null" json:"old_output_rate_per_1k"`
	NewInputRatePer1K  decimal.Decimal `gorm:"column:new_input_rate_per_1k;type:numeric;not null" json:"new_input_rate_per_1k"`
	NewOutputRatePer1K decimal.Decimal `gorm:"column:new_output_rate_per_1k;type:numeric;not null" json:"new_output_rate_per_1k"`

	// DriftFraction is the larger relative change of the two rates.
	DriftFraction decimal.Decimal `gorm:"type:numeric;not null" json:"drift_fraction"`

	Status     DriftStatus `gorm:"not null;default:pending" json:"status"`
	DetectedAt time.Time   `gorm:"not null" json:"detected_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PriceDrift) TableName() string { return "price_drifts" }

// CatalogEntry is one model's pricing row in the upstream catalog. Costs are
// USD per single unit; normalization to cents per 1K happens at sync time.
type CatalogEntry struct {
	InputCostPerToken      float64 `json:"input_cost_per_token"`
	OutputCostPerToken     float64 `json:"output_cost_per_token"`
	InputCostPerCharacter  float64 `json:"input_cost_per_character"`
	OutputCostPerCharacter float64 `json:"output_cost_per_character"`
	Provider               string  `json:"litellm_provider"`
	Mode                   string  `json:"mode"`
	DeprecationDate        string  `json:"deprecation_date"`
}

// SyncReport summarizes one catalog pass.
type SyncReport struct {
	Created     int `json:"created"`
	Unchanged   int `json:"unchanged"`
	Drifted     int `json:"drifted"`
	Skipped     int `json:"skipped"`
	Deactivated int `json:"deactivated"`
}
