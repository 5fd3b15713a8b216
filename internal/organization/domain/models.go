package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Organization is the tenant boundary. Every record in the pipeline is scoped
// to exactly one organization.
type Organization struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"not null" json:"name"`

	// MarginAlertThresholdBps below which a below_threshold alert fires. Zero disables
	// the rollup evaluation.
	MarginAlertThresholdBps int64 `gorm:"not null;default:0" json:"margin_alert_threshold_bps"`
	// MarginAlertPeriodDays is the rolling window the periodic rollup evaluates.
	MarginAlertPeriodDays int `gorm:"not null;default:30" json:"margin_alert_period_days"`

	// DriftThreshold overrides the platform default drift fraction when positive.
	DriftThreshold decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"drift_threshold"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }
