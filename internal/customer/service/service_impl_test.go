package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/customer/domain"
	"github.com/profitlens/profitlens/internal/customer/repository"
	"github.com/profitlens/profitlens/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(conn, zap.NewNop()))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	svc := New(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, conn, node
}

func TestFindOrCreate(t *testing.T) {
	svc, _, _ := newTestService(t)
	orgID := snowflake.ID(42)

	created, err := svc.FindOrCreate(context.Background(), nil, orgID, "cust-1", "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", created.ExternalID)
	assert.Equal(t, "Acme Corp", created.Name)

	again, err := svc.FindOrCreate(context.Background(), nil, orgID, "cust-1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "Acme Corp", again.Name, "existing row wins, no rename")

	other, err := svc.FindOrCreate(context.Background(), nil, orgID+1, "cust-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, other.ID, "external IDs are scoped per organization")
}

func TestFindOrCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.FindOrCreate(context.Background(), nil, 0, "cust-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = svc.FindOrCreate(context.Background(), nil, 42, "   ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)
}

func TestReplaceSubscriptionRevenue(t *testing.T) {
	svc, db, _ := newTestService(t)
	orgID := snowflake.ID(42)

	require.NoError(t, svc.ReplaceSubscriptionRevenue(context.Background(), orgID, map[string]int64{
		"bill-1": 50000,
		"bill-2": 20000,
	}))

	var customers []domain.Customer
	require.NoError(t, db.Where("org_id = ?", orgID).Order("external_id").Find(&customers).Error)
	require.Len(t, customers, 2)
	assert.Equal(t, int64(50000), customers[0].MonthlySubscriptionRevenueCents)
	require.NotNil(t, customers[0].BillingCustomerID)
	assert.Equal(t, "bill-1", *customers[0].BillingCustomerID)

	// A fresh snapshot updates the kept subscription and zeroes the dropped one.
	require.NoError(t, svc.ReplaceSubscriptionRevenue(context.Background(), orgID, map[string]int64{
		"bill-1": 60000,
	}))

	customers = nil
	require.NoError(t, db.Where("org_id = ?", orgID).Order("external_id").Find(&customers).Error)
	require.Len(t, customers, 2)
	assert.Equal(t, int64(60000), customers[0].MonthlySubscriptionRevenueCents)
	assert.Equal(t, int64(0), customers[1].MonthlySubscriptionRevenueCents, "stale subscription zeroed, row kept")
}

func TestReplaceSubscriptionRevenueLinksExistingCustomer(t *testing.T) {
	svc, db, _ := newTestService(t)
	orgID := snowflake.ID(42)

	// A usage-created customer whose external ID matches the billing ID gets
	// linked instead of duplicated.
	existing, err := svc.FindOrCreate(context.Background(), nil, orgID, "bill-1", "Acme Corp")
	require.NoError(t, err)

	require.NoError(t, svc.ReplaceSubscriptionRevenue(context.Background(), orgID, map[string]int64{
		"bill-1": 50000,
	}))

	var count int64
	require.NoError(t, db.Model(&domain.Customer{}).Where("org_id = ?", orgID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row domain.Customer
	require.NoError(t, db.Where("id = ?", existing.ID).First(&row).Error)
	require.NotNil(t, row.BillingCustomerID)
	assert.Equal(t, "bill-1", *row.BillingCustomerID)
	assert.Equal(t, int64(50000), row.MonthlySubscriptionRevenueCents)
}

func TestReplaceSubscriptionRevenueEmptySnapshot(t *testing.T) {
	svc, db, _ := newTestService(t)
	orgID := snowflake.ID(42)

	require.NoError(t, svc.ReplaceSubscriptionRevenue(context.Background(), orgID, map[string]int64{
		"bill-1": 50000,
	}))
	require.NoError(t, svc.ReplaceSubscriptionRevenue(context.Background(), orgID, nil))

	var row domain.Customer
	require.NoError(t, db.Where("org_id = ?", orgID).First(&row).Error)
	assert.Equal(t, int64(0), row.MonthlySubscriptionRevenueCents)

	assert.ErrorIs(t, svc.ReplaceSubscriptionRevenue(context.Background(), 0, nil), domain.ErrInvalidOrganization)
}

func TestGetByID(t *testing.T) {
	svc, _, node := newTestService(t)
	orgID := snowflake.ID(42)

	created, err := svc.FindOrCreate(context.Background(), nil, orgID, "cust-1", "")
	require.NoError(t, err)

	found, err := svc.GetByID(context.Background(), orgID, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	// Wrong tenant and unknown IDs come back empty, not as errors.
	found, err = svc.GetByID(context.Background(), orgID+1, created.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = svc.GetByID(context.Background(), orgID, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, found)
}
