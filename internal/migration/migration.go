package migration

import (
	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	customerdomain "github.com/profitlens/profitlens/internal/customer/domain"
	eventdomain "github.com/profitlens/profitlens/internal/event/domain"
	invoicedomain "github.com/profitlens/profitlens/internal/invoice/domain"
	orgdomain "github.com/profitlens/profitlens/internal/organization/domain"
	pricingdomain "github.com/profitlens/profitlens/internal/pricing/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// partialIndexes are the predicated unique constraints the model tags cannot
// express. CREATE ... IF NOT EXISTS keeps the pass idempotent on both
// postgres and sqlite.
var partialIndexes = []string{
	// One open alert per (org, type, dimension, key); acknowledging re-arms it.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_margin_alerts_open_key
		ON margin_alerts (org_id, alert_type, dimension, dimension_key)
		WHERE acknowledged_at IS NULL`,
	// One active platform-wide rate per (vendor, model).
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vendor_rates_active_global
		ON vendor_rates (vendor_name, model_name)
		WHERE active AND org_id IS NULL`,
	// One active org-scoped rate per (org, vendor, model).
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vendor_rates_active_org
		ON vendor_rates (org_id, vendor_name, model_name)
		WHERE active AND org_id IS NOT NULL`,
	// One pending drift per (vendor, model); re-detection updates in place.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_price_drifts_pending_pair
		ON price_drifts (vendor_name, model_name)
		WHERE status = 'pending'`,
}

// Run migrates the schema. Models first, predicated indexes after, since
// AutoMigrate has no notion of a WHERE clause.
func Run(db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	err := db.AutoMigrate(
		&orgdomain.Organization{},
		&customerdomain.Customer{},
		&eventdomain.Event{},
		&eventdomain.TelemetryEvent{},
		&costingdomain.CostEntry{},
		&ratedomain.VendorRate{},
		&alertdomain.MarginAlert{},
		&pricingdomain.PriceDrift{},
		&invoicedomain.ExternalInvoice{},
	)
	if err != nil {
		return err
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	log.Info("schema migrated")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
