package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Resolver interface {
	// Resolve returns the applicable rate for (vendor, model) in the
	// organization's scope: an org-scoped row wins over a global row. When
	// forLiveCosting is set only active rows are eligible; reprocessing also
	// accepts inactive rows so historical costs stay reproducible. Runs against
	// db, which may be an open transaction.
	Resolve(ctx context.Context, db *gorm.DB, vendor, model string, orgID snowflake.ID, forLiveCosting bool) (Resolution, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *VendorRate) error
	FindScoped(ctx context.Context, db *gorm.DB, orgID snowflake.ID, vendor, model string, activeOnly bool) (*VendorRate, error)
	FindGlobal(ctx context.Context, db *gorm.DB, vendor, model string, activeOnly bool) (*VendorRate, error)
	FindGlobalForUpdate(ctx context.Context, db *gorm.DB, vendor, model string) (*VendorRate, error)
	ListActiveGlobal(ctx context.Context, db *gorm.DB) ([]VendorRate, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}

var (
	ErrDuplicateActiveRate = errors.New("duplicate_active_rate")
	ErrInvalidRate         = errors.New("invalid_vendor_rate")
)

type UpsertRateRequest struct {
	OrgID           *snowflake.ID
	Vendor          string
	Model           string
	InputRatePer1K  string
	OutputRatePer1K string
	UnitType        string
}

// Manager is the write side of the rate table, used by the admin API. A nil
// OrgID targets the platform-wide scope.
type Manager interface {
	Upsert(ctx context.Context, req UpsertRateRequest) (*VendorRate, error)
	List(ctx context.Context, orgID *snowflake.ID) ([]VendorRate, error)
}
