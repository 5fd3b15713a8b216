package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// FindOrCreate returns the customer for (orgID, externalID), creating it if
	// absent. A concurrent creation race is resolved by re-fetching the winner.
	// Runs against db, which may be an open transaction.
	FindOrCreate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID, name string) (*Customer, error)

	// ReplaceSubscriptionRevenue applies a full sync snapshot of monthly revenue
	// figures keyed by billing customer ID. Customers with a billing ID missing
	// from the snapshot are zeroed. Runs all-or-nothing in one transaction.
	ReplaceSubscriptionRevenue(ctx context.Context, orgID snowflake.ID, revenues map[string]int64) error

	GetByID(ctx context.Context, orgID, id snowflake.ID) (*Customer, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidExternalID   = errors.New("invalid_external_id")
	ErrNotFound            = errors.New("customer_not_found")
)
