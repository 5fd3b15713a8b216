package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/rate/domain"
	pkgdb "github.com/profitlens/profitlens/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.VendorRate) error {
	err := db.WithContext(ctx).Create(rate).Error
	if err != nil && pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateActiveRate
	}
	return err
}

func (r *repo) FindScoped(ctx context.Context, db *gorm.DB, orgID snowflake.ID, vendor, model string, activeOnly bool) (*domain.VendorRate, error) {
	stmt := db.WithContext(ctx).
		Where("org_id = ? AND vendor_name = ? AND model_name = ?", orgID, vendor, model)
	return first(stmt, activeOnly)
}

func (r *repo) FindGlobal(ctx context.Context, db *gorm.DB, vendor, model string, activeOnly bool) (*domain.VendorRate, error) {
	stmt := db.WithContext(ctx).
		Where("org_id IS NULL AND vendor_name = ? AND model_name = ?", vendor, model)
	return first(stmt, activeOnly)
}

func (r *repo) FindGlobalForUpdate(ctx context.Context, db *gorm.DB, vendor, model string) (*domain.VendorRate, error) {
	stmt := pkgdb.LockForUpdate(db.WithContext(ctx)).
		Where("org_id IS NULL AND vendor_name = ? AND model_name = ?", vendor, model)
	return first(stmt, false)
}

func (r *repo) ListActiveGlobal(ctx context.Context, db *gorm.DB) ([]domain.VendorRate, error) {
	var rates []domain.VendorRate
	err := db.WithContext(ctx).
		Where("org_id IS NULL AND active = ?", true).
		Order("vendor_name asc, model_name asc").
		Find(&rates).Error
	return rates, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.VendorRate{}).Where("id = ?", id).Updates(fields).Error
}

// first prefers an active row; with activeOnly unset an inactive row is an
// acceptable fallback so reprocessing sees retired prices.
func first(stmt *gorm.DB, activeOnly bool) (*domain.VendorRate, error) {
	var rate domain.VendorRate
	err := stmt.Order("active desc, updated_at desc").First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if activeOnly && !rate.Active {
		return nil, nil
	}
	return &rate, nil
}
