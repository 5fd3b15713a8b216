package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/migration"
	"github.com/profitlens/profitlens/internal/organization/domain"
	"github.com/profitlens/profitlens/pkg/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(conn, zap.NewNop()))

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	return New(ServiceParam{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.ProvideStore[domain.Organization](conn),
	})
}

func TestCreateOrganization(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{
		Name:                    "  acme  ",
		MarginAlertThresholdBps: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", org.Name)
	assert.Equal(t, int64(5000), org.MarginAlertThresholdBps)
	assert.Equal(t, 30, org.MarginAlertPeriodDays, "period defaults to 30 days")

	_, err = svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGetAndList(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "acme"})
	require.NoError(t, err)

	found, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.Get(context.Background(), created.ID+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "globex"})
	require.NoError(t, err)
	orgs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}

func TestUpdateSettings(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "acme"})
	require.NoError(t, err)

	threshold := int64(2500)
	period := 7
	drift := "0.05"
	updated, err := svc.UpdateSettings(context.Background(), org.ID, domain.UpdateSettingsRequest{
		MarginAlertThresholdBps: &threshold,
		MarginAlertPeriodDays:   &period,
		DriftThreshold:          &drift,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), updated.MarginAlertThresholdBps)
	assert.Equal(t, 7, updated.MarginAlertPeriodDays)
	assert.True(t, updated.DriftThreshold.Equal(decimal.RequireFromString("0.05")))

	// Partial updates leave the other settings in place.
	zero := int64(0)
	updated, err = svc.UpdateSettings(context.Background(), org.ID, domain.UpdateSettingsRequest{
		MarginAlertThresholdBps: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.MarginAlertThresholdBps)
	assert.Equal(t, 7, updated.MarginAlertPeriodDays)
}

func TestUpdateSettingsErrors(t *testing.T) {
	svc := newTestService(t)

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "acme"})
	require.NoError(t, err)

	bad := "-0.5"
	_, err = svc.UpdateSettings(context.Background(), org.ID, domain.UpdateSettingsRequest{DriftThreshold: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidDriftThreshold)

	garbage := "not-a-number"
	_, err = svc.UpdateSettings(context.Background(), org.ID, domain.UpdateSettingsRequest{DriftThreshold: &garbage})
	assert.ErrorIs(t, err, domain.ErrInvalidDriftThreshold)

	_, err = svc.UpdateSettings(context.Background(), org.ID+1, domain.UpdateSettingsRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
