package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	"github.com/profitlens/profitlens/internal/migration"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	raterepo "github.com/profitlens/profitlens/internal/rate/repository"
	rateservice "github.com/profitlens/profitlens/internal/rate/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(conn, zap.NewNop()))
	return conn
}

func newCalculator(t *testing.T, db *gorm.DB) (costingdomain.Calculator, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := raterepo.Provide()
	resolver := rateservice.NewResolver(rateservice.ResolverParam{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repo,
	})
	calc := New(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Resolver: resolver,
	})
	return calc, node
}

func seedGlobalRate(t *testing.T, db *gorm.DB, node *snowflake.Node, vendor, model string, input, output string) ratedomain.VendorRate {
	t.Helper()
	rate := ratedomain.VendorRate{
		ID:              node.Generate(),
		Vendor:          vendor,
		Model:           model,
		InputRatePer1K:  decimal.RequireFromString(input),
		OutputRatePer1K: decimal.RequireFromString(output),
		UnitType:        "tokens",
		Active:          true,
	}
	require.NoError(t, db.Create(&rate).Error)
	return rate
}

func TestComputeCostEntriesWithVendorRate(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)
	seedGlobalRate(t, db, node, "openai", "gpt-4o", "2.5", "5.0")

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "openai", Model: "gpt-4o", InputUnits: 1000, OutputUnits: 500},
		},
	}, costingdomain.PolicyLenient)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// 1000 * 2.5/1000 + 500 * 5.0/1000 = 2.5 + 2.5 = 5.0 cents
	assert.True(t, entries[0].AmountCents.Equal(decimal.RequireFromString("5")),
		"got %s", entries[0].AmountCents)
	assert.Equal(t, costingdomain.RateSourceVendorRate, entries[0].Metadata["rate_source"])
}

func TestComputeCostEntriesOrgRateOverridesGlobal(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)
	seedGlobalRate(t, db, node, "openai", "gpt-4o", "2.5", "5.0")

	orgID := snowflake.ID(42)
	orgRate := ratedomain.VendorRate{
		ID:              node.Generate(),
		OrgID:           &orgID,
		Vendor:          "openai",
		Model:           "gpt-4o",
		InputRatePer1K:  decimal.RequireFromString("10"),
		OutputRatePer1K: decimal.RequireFromString("20"),
		UnitType:        "tokens",
		Active:          true,
	}
	require.NoError(t, db.Create(&orgRate).Error)

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     orgID,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "openai", Model: "gpt-4o", InputUnits: 1000, OutputUnits: 1000},
		},
	}, costingdomain.PolicyLenient)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// org rate: 10 + 20 = 30 cents, not the global 7.5
	assert.True(t, entries[0].AmountCents.Equal(decimal.RequireFromString("30")))
	assert.Equal(t, string(ratedomain.FoundOrgRate), entries[0].Metadata["rate_scope"])
}

func TestComputeCostEntriesMissingRateLenient(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "openai", Model: "unknown-model", InputUnits: 1000},
		},
	}, costingdomain.PolicyLenient)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.True(t, entries[0].AmountCents.IsZero())
	assert.Equal(t, costingdomain.RateSourceMissingRate, entries[0].Metadata["rate_source"])
}

func TestComputeCostEntriesTelemetryRawFallback(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	raw := decimal.RequireFromString("12.75")
	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindTelemetry,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "anthropic", Model: "unknown-model", RawAmountCents: &raw},
		},
	}, costingdomain.PolicyTelemetry)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.True(t, entries[0].AmountCents.Equal(raw))
	assert.Equal(t, costingdomain.RateSourceRawFallback, entries[0].Metadata["rate_source"])
}

func TestComputeCostEntriesTelemetryFallsBackToZero(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindTelemetry,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "anthropic", Model: "unknown-model", InputUnits: 100},
		},
	}, costingdomain.PolicyTelemetry)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.True(t, entries[0].AmountCents.IsZero())
	assert.Equal(t, costingdomain.RateSourceMissingRate, entries[0].Metadata["rate_source"])
}

func TestComputeCostEntriesStrictFailsOnMissingRate(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	_, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "openai", Model: "unknown-model", InputUnits: 1000},
		},
	}, costingdomain.PolicyStrict)
	require.Error(t, err)
	assert.True(t, costingdomain.IsRateNotFound(err))
}

func TestComputeCostEntriesStrictUsesInactiveRate(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	rate := seedGlobalRate(t, db, node, "openai", "gpt-4o", "2.5", "5.0")
	require.NoError(t, db.Model(&ratedomain.VendorRate{}).
		Where("id = ?", rate.ID).
		Update("active", false).Error)

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     42,
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "openai", Model: "gpt-4o", InputUnits: 1000, OutputUnits: 500},
		},
	}, costingdomain.PolicyStrict)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].AmountCents.Equal(decimal.RequireFromString("5")))
}

func TestComputeCostEntriesFallbackModel(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)
	seedGlobalRate(t, db, node, "anthropic", "claude-sonnet", "3", "15")

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:       node.Generate(),
		EventKind:     costingdomain.EventKindTelemetry,
		OrgID:         42,
		FallbackModel: "claude-sonnet",
		Lines: []costingdomain.VendorCostLine{
			{Vendor: "anthropic", InputUnits: 1000, OutputUnits: 1000},
		},
	}, costingdomain.PolicyTelemetry)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "claude-sonnet", entries[0].Model)
	assert.True(t, entries[0].AmountCents.Equal(decimal.RequireFromString("18")))
}

func TestComputeCostEntriesNoLines(t *testing.T) {
	db := newTestDB(t)
	calc, node := newCalculator(t, db)

	entries, err := calc.ComputeCostEntries(context.Background(), db, costingdomain.Input{
		EventID:   node.Generate(),
		EventKind: costingdomain.EventKindUsage,
		OrgID:     42,
	}, costingdomain.PolicyLenient)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
