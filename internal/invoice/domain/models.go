package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ExternalInvoice is a paid invoice mirrored from the billing provider by the
// external sync collaborator. The margin aggregator prorates its amount over
// the reporting window.
type ExternalInvoice struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_external_invoices_org_provider" json:"organization_id"`
	CustomerID        *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`
	ProviderInvoiceID string        `gorm:"not null;uniqueIndex:idx_external_invoices_org_provider" json:"provider_invoice_id"`
	BillingCustomerID string        `gorm:"not null" json:"billing_customer_id"`
	AmountCents       int64         `gorm:"not null" json:"amount_cents"`
	Currency          string        `gorm:"not null;default:usd" json:"currency"`
	PeriodStart       time.Time     `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time     `gorm:"not null" json:"period_end"`
	PaidAt            time.Time     `gorm:"not null" json:"paid_at"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ExternalInvoice) TableName() string { return "external_invoices" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, invoice *ExternalInvoice) error
	ListForOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ExternalInvoice, error)
}
