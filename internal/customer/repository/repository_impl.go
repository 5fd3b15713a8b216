package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Customer, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID string) (*domain.Customer, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND external_id = ?", orgID, externalID))
}

func (r *repo) FindByBillingCustomerID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, billingID string) (*domain.Customer, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND billing_customer_id = ?", orgID, billingID))
}

func first(stmt *gorm.DB) (*domain.Customer, error) {
	var customer domain.Customer
	err := stmt.First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
