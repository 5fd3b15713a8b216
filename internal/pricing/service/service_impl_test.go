package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/config"
	"github.com/profitlens/profitlens/internal/migration"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	"github.com/profitlens/profitlens/internal/pricing/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	raterepo "github.com/profitlens/profitlens/internal/rate/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeCatalog map[string]domain.CatalogEntry

func (f fakeCatalog) Fetch(context.Context) (map[string]domain.CatalogEntry, error) {
	return f, nil
}

type testEnv struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	node    *snowflake.Node
	catalog fakeCatalog
	pricing domain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(conn, zap.NewNop()))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	catalog := fakeCatalog{}

	pricing := New(ServiceParam{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Config:  config.Config{DriftThresholdDefault: "0.0001"},
		Catalog: catalog,
		Rates:   raterepo.Provide(),
		Metrics: metrics.NewWith(prometheus.NewRegistry()),
	})

	return &testEnv{db: conn, clock: fake, node: node, catalog: catalog, pricing: pricing}
}

func (e *testEnv) seedGlobalRate(t *testing.T, vendor, model, input, output string) ratedomain.VendorRate {
	t.Helper()
	rate := ratedomain.VendorRate{
		ID:              e.node.Generate(),
		Vendor:          vendor,
		Model:           model,
		InputRatePer1K:  decimal.RequireFromString(input),
		OutputRatePer1K: decimal.RequireFromString(output),
		UnitType:        "tokens",
		Active:          true,
	}
	require.NoError(t, e.db.Create(&rate).Error)
	return rate
}

func (e *testEnv) globalRate(t *testing.T, vendor, model string) *ratedomain.VendorRate {
	t.Helper()
	var rate ratedomain.VendorRate
	err := e.db.Where("org_id IS NULL AND vendor_name = ? AND model_name = ? AND active = ?", vendor, model, true).
		First(&rate).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	require.NoError(t, err)
	return &rate
}

func TestSyncCreatesRates(t *testing.T) {
	env := newTestEnv(t)
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.000025,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
		Mode:               "chat",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	rate := env.globalRate(t, "openai", "gpt-4o")
	require.NotNil(t, rate)
	// 0.000025 USD/token = 2.5 cents per 1K tokens
	assert.True(t, rate.InputRatePer1K.Equal(decimal.RequireFromString("2.5")), "got %s", rate.InputRatePer1K)
	assert.True(t, rate.OutputRatePer1K.Equal(decimal.RequireFromString("5")))
}

func TestSyncResolvesVendorFromProviderLabel(t *testing.T) {
	env := newTestEnv(t)
	env.catalog["claude-sonnet"] = domain.CatalogEntry{
		InputCostPerToken:  0.000003,
		OutputCostPerToken: 0.000015,
		Provider:           "anthropic",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.NotNil(t, env.globalRate(t, "anthropic", "claude-sonnet"))
}

func TestSyncNormalizesPerCharacterRates(t *testing.T) {
	env := newTestEnv(t)
	env.catalog["vertex_ai/text-bison"] = domain.CatalogEntry{
		InputCostPerCharacter:  0.000001,
		OutputCostPerCharacter: 0.000002,
		Provider:               "vertex_ai-text-models",
	}

	_, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)

	rate := env.globalRate(t, "vertex_ai", "text-bison")
	require.NotNil(t, rate)
	// 0.000001 USD/char * 4 chars/token = 0.4 cents per 1K tokens
	assert.True(t, rate.InputRatePer1K.Equal(decimal.RequireFromString("0.4")), "got %s", rate.InputRatePer1K)
	assert.True(t, rate.OutputRatePer1K.Equal(decimal.RequireFromString("0.8")))
}

func TestSyncSkipsUntrackedAndFreeEntries(t *testing.T) {
	env := newTestEnv(t)
	env.catalog["command-r"] = domain.CatalogEntry{
		InputCostPerToken: 0.000001,
		Provider:          "cohere",
	}
	env.catalog["openai/free-model"] = domain.CatalogEntry{Provider: "openai"}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 2, report.Skipped)
}

func TestSyncSkipsDeprecatedModels(t *testing.T) {
	env := newTestEnv(t)
	env.catalog["openai/gpt-3.5-turbo"] = domain.CatalogEntry{
		InputCostPerToken: 0.0000005,
		Provider:          "openai",
		DeprecationDate:   "2025-01-01",
	}
	// An unparseable date must not hide a live model.
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken: 0.000025,
		Provider:          "openai",
		DeprecationDate:   "soon",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Nil(t, env.globalRate(t, "openai", "gpt-3.5-turbo"))
	assert.NotNil(t, env.globalRate(t, "openai", "gpt-4o"))
}

func TestSyncUnchangedWithinThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.000025,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Drifted)
}

func TestSyncRecordsDriftWithoutTouchingRate(t *testing.T) {
	env := newTestEnv(t)
	env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.00003, // 3.0 vs 2.5 -> 20% drift
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Drifted)

	// Rate stays at the platform value until the drift is applied.
	rate := env.globalRate(t, "openai", "gpt-4o")
	assert.True(t, rate.InputRatePer1K.Equal(decimal.RequireFromString("2.5")))

	drifts, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, drifts[0].NewInputRatePer1K.Equal(decimal.RequireFromString("3")))
	assert.True(t, drifts[0].DriftFraction.Equal(decimal.RequireFromString("0.2")), "got %s", drifts[0].DriftFraction)
}

func TestSyncUpdatesPendingDriftInPlace(t *testing.T) {
	env := newTestEnv(t)
	env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.00003,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}
	_, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)

	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.000035,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}
	_, err = env.pricing.Sync(context.Background())
	require.NoError(t, err)

	drifts, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, drifts[0].NewInputRatePer1K.Equal(decimal.RequireFromString("3.5")))
}

func TestSyncDeactivatesAbsentModels(t *testing.T) {
	env := newTestEnv(t)
	env.seedGlobalRate(t, "openai", "retired-model", "1", "2")
	env.seedGlobalRate(t, "custom-vendor", "house-model", "1", "2")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken: 0.000025,
		Provider:          "openai",
	}

	report, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deactivated)

	// Deactivated, not deleted.
	var retired ratedomain.VendorRate
	require.NoError(t, env.db.Where("vendor_name = ? AND model_name = ?", "openai", "retired-model").First(&retired).Error)
	assert.False(t, retired.Active)

	// Vendors the catalog does not cover are left alone.
	assert.NotNil(t, env.globalRate(t, "custom-vendor", "house-model"))
}

func TestApplyDrift(t *testing.T) {
	env := newTestEnv(t)
	old := env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.00003,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}
	_, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	drifts, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	applied, err := env.pricing.Apply(context.Background(), drifts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriftApplied, applied.Status)
	assert.NotNil(t, applied.ResolvedAt)

	// The old row is retired, the replacement carries the new rates.
	var oldRow ratedomain.VendorRate
	require.NoError(t, env.db.Where("id = ?", old.ID).First(&oldRow).Error)
	assert.False(t, oldRow.Active)

	active := env.globalRate(t, "openai", "gpt-4o")
	require.NotNil(t, active)
	assert.True(t, active.InputRatePer1K.Equal(decimal.RequireFromString("3")))

	pending, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyStaleDrift(t *testing.T) {
	env := newTestEnv(t)
	rate := env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.00003,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}
	_, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	drifts, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	// The platform rate moves between detection and apply.
	require.NoError(t, env.db.Model(&ratedomain.VendorRate{}).
		Where("id = ?", rate.ID).
		Update("input_rate_per_1k", decimal.RequireFromString("4")).Error)

	_, err = env.pricing.Apply(context.Background(), drifts[0].ID)
	assert.ErrorIs(t, err, domain.ErrStaleDrift)
}

func TestIgnoreDrift(t *testing.T) {
	env := newTestEnv(t)
	env.seedGlobalRate(t, "openai", "gpt-4o", "2.5", "5")
	env.catalog["openai/gpt-4o"] = domain.CatalogEntry{
		InputCostPerToken:  0.00003,
		OutputCostPerToken: 0.00005,
		Provider:           "openai",
	}
	_, err := env.pricing.Sync(context.Background())
	require.NoError(t, err)
	drifts, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	ignored, err := env.pricing.Ignore(context.Background(), drifts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DriftIgnored, ignored.Status)

	// Rate untouched, nothing pending, double resolution rejected.
	rate := env.globalRate(t, "openai", "gpt-4o")
	assert.True(t, rate.InputRatePer1K.Equal(decimal.RequireFromString("2.5")))
	pending, err := env.pricing.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = env.pricing.Ignore(context.Background(), drifts[0].ID)
	assert.ErrorIs(t, err, domain.ErrDriftResolved)
}

func TestApplyUnknownDrift(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pricing.Apply(context.Background(), env.node.Generate())
	assert.ErrorIs(t, err, domain.ErrDriftNotFound)
}
