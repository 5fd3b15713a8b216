package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// VendorRate is one price-table row. Rows with a nil OrgID are platform-wide
// defaults; org-scoped rows override them. At most one active row may exist per
// (vendor, model) in each scope.
type VendorRate struct {
	ID    snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID *snowflake.ID `gorm:"index" json:"organization_id,omitempty"`

	Vendor string `gorm:"column:vendor_name;not null;index:idx_vendor_rates_pair" json:"vendor_name"`
	Model  string `gorm:"column:model_name;not null;index:idx_vendor_rates_pair" json:"model_name"`

	// Rates are cents per 1000 units, exact decimal.
	InputRatePer1K  decimal.Decimal `gorm:"column:input_rate_per_1k;type:numeric;not null" json:"input_rate_per_1k"`
	OutputRatePer1K decimal.Decimal `gorm:"column:output_rate_per_1k;type:numeric;not null" json:"output_rate_per_1k"`

	UnitType string `gorm:"not null;default:tokens" json:"unit_type"`
	Active   bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (VendorRate) TableName() string { return "vendor_rates" }

// ResolutionKind tags where a resolved rate came from.
type ResolutionKind string

const (
	FoundOrgRate    ResolutionKind = "org_rate"
	FoundGlobalRate ResolutionKind = "global_rate"
	NotFound        ResolutionKind = "not_found"
)

// Resolution is the tagged result of a rate lookup. A NotFound kind is not an
// error; it means no applicable price exists.
type Resolution struct {
	Kind ResolutionKind
	Rate *VendorRate
}

func (r Resolution) Found() bool { return r.Kind != NotFound }
