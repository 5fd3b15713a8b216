package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/invoice/domain"
	pkgdb "github.com/profitlens/profitlens/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert inserts the invoice or, when the (org, provider invoice) pair already
// exists, refreshes the mutable columns in place.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, invoice *domain.ExternalInvoice) error {
	err := db.WithContext(ctx).Create(invoice).Error
	if err == nil {
		return nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}
	return db.WithContext(ctx).Model(&domain.ExternalInvoice{}).
		Where("org_id = ? AND provider_invoice_id = ?", invoice.OrgID, invoice.ProviderInvoiceID).
		Updates(map[string]any{
			"customer_id":         invoice.CustomerID,
			"billing_customer_id": invoice.BillingCustomerID,
			"amount_cents":        invoice.AmountCents,
			"currency":            invoice.Currency,
			"period_start":        invoice.PeriodStart,
			"period_end":          invoice.PeriodEnd,
			"paid_at":             invoice.PaidAt,
			"updated_at":          invoice.UpdatedAt,
		}).Error
}

func (r *repo) ListForOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.ExternalInvoice, error) {
	var invoices []domain.ExternalInvoice
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("period_start asc, id asc").
		Find(&invoices).Error
	return invoices, err
}
