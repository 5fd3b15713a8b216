package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is keyed by the caller-supplied external ID within an organization.
// BillingCustomerID links the customer to the external billing provider and is
// unique per organization when present.
type Customer struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;uniqueIndex:idx_customers_org_external;uniqueIndex:idx_customers_org_billing" json:"organization_id"`
	ExternalID        string       `gorm:"not null;uniqueIndex:idx_customers_org_external" json:"external_id"`
	Name              string       `json:"name"`
	BillingCustomerID *string      `gorm:"uniqueIndex:idx_customers_org_billing" json:"billing_customer_id,omitempty"`

	// MonthlySubscriptionRevenueCents is refreshed by the external billing sync
	// and prorated by the margin aggregator.
	MonthlySubscriptionRevenueCents int64 `gorm:"not null;default:0" json:"monthly_subscription_revenue_cents"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
