package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertNegativeMargin AlertType = "negative_margin"
	AlertBelowThreshold AlertType = "below_threshold"
)

type Dimension string

const (
	DimensionCustomer  Dimension = "customer"
	DimensionEventType Dimension = "event_type"
)

// MarginAlert records one margin rule violation. At most one unacknowledged
// alert exists per (org, alert type, dimension, dimension key); the open-key
// partial unique index enforces that, so acknowledging re-arms the key.
type MarginAlert struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index" json:"organization_id"`

	AlertType    AlertType `gorm:"not null" json:"alert_type"`
	Dimension    Dimension `gorm:"not null" json:"dimension"`
	DimensionKey string    `gorm:"not null" json:"dimension_key"`

	// Message is the human-readable summary shown in notifications and lists.
	Message string `json:"message"`

	// Snapshot of the aggregate that tripped the rule.
	RevenueCents decimal.Decimal `gorm:"type:numeric;not null" json:"revenue_cents"`
	CostCents    decimal.Decimal `gorm:"type:numeric;not null" json:"cost_cents"`
	MarginCents  decimal.Decimal `gorm:"type:numeric;not null" json:"margin_cents"`
	MarginBps    int64           `gorm:"not null" json:"margin_bps"`
	ThresholdBps int64           `gorm:"not null;default:0" json:"threshold_bps"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	Notes          string     `json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MarginAlert) TableName() string { return "margin_alerts" }
