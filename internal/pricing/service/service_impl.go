package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/config"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	"github.com/profitlens/profitlens/internal/pricing/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// charsPerToken approximates the usual 4-characters-per-token heuristic when
// the catalog prices by character instead of token.
var charsPerToken = decimal.NewFromInt(4)

// usdToCentsPer1K converts a USD-per-unit figure into cents per 1000 units.
var usdToCentsPer1K = decimal.NewFromInt(100 * 1000)

// trackedVendors maps upstream provider labels onto platform vendor names.
// Catalog entries for anyone else are skipped, and deactivation only touches
// vendors the catalog actually covers.
var trackedVendors = map[string]string{
	"openai":    "openai",
	"anthropic": "anthropic",
	"vertex_ai": "vertex_ai",
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Catalog domain.CatalogSource
	Rates   ratedomain.Repository
	Metrics *metrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	catalog   domain.CatalogSource
	rates     ratedomain.Repository
	metrics   *metrics.Metrics
	threshold decimal.Decimal
}

func New(p ServiceParam) domain.Service {
	threshold, err := decimal.NewFromString(p.Config.DriftThresholdDefault)
	if err != nil || threshold.IsNegative() {
		threshold = decimal.NewFromFloat(0.0001)
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("pricing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		catalog:   p.Catalog,
		rates:     p.Rates,
		metrics:   p.Metrics,
		threshold: threshold,
	}
}

type normalizedEntry struct {
	vendor     string
	model      string
	inputRate  decimal.Decimal
	outputRate decimal.Decimal
}

func (s *Service) Sync(ctx context.Context) (domain.SyncReport, error) {
	catalog, err := s.catalog.Fetch(ctx)
	if err != nil {
		return domain.SyncReport{}, err
	}

	var report domain.SyncReport
	entries := make([]normalizedEntry, 0, len(catalog))
	seen := make(map[[2]string]struct{}, len(catalog))
	today := s.clock.Now()

	for key, raw := range catalog {
		entry, ok := s.normalize(key, raw, today)
		if !ok {
			report.Skipped++
			continue
		}
		pair := [2]string{entry.vendor, entry.model}
		if _, dup := seen[pair]; dup {
			report.Skipped++
			continue
		}
		seen[pair] = struct{}{}
		entries = append(entries, entry)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if err := s.reconcile(ctx, tx, entry, &report); err != nil {
				return err
			}
		}

		// Models gone from the catalog stop matching new usage but keep their
		// rows so old cost entries stay auditable.
		active, err := s.rates.ListActiveGlobal(ctx, tx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, rate := range active {
			if _, covered := trackedVendors[rate.Vendor]; !covered {
				continue
			}
			if _, present := seen[[2]string{rate.Vendor, rate.Model}]; present {
				continue
			}
			err := s.rates.Update(ctx, tx, rate.ID, map[string]any{
				"active":     false,
				"updated_at": now,
			})
			if err != nil {
				return err
			}
			report.Deactivated++
		}
		return nil
	})
	if err != nil {
		return domain.SyncReport{}, err
	}

	s.log.Info("catalog sync complete",
		zap.Int("created", report.Created),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("drifted", report.Drifted),
		zap.Int("skipped", report.Skipped),
		zap.Int("deactivated", report.Deactivated),
	)
	return report, nil
}

func (s *Service) ListPending(ctx context.Context) ([]domain.PriceDrift, error) {
	var drifts []domain.PriceDrift
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.DriftPending).
		Order("detected_at DESC").
		Find(&drifts).Error
	return drifts, err
}

func (s *Service) Apply(ctx context.Context, driftID snowflake.ID) (*domain.PriceDrift, error) {
	var drift domain.PriceDrift
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", driftID).First(&drift).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrDriftNotFound
			}
			return err
		}
		if drift.Status != domain.DriftPending {
			return domain.ErrDriftResolved
		}

		now := s.clock.Now()
		current, err := s.rates.FindGlobalForUpdate(ctx, tx, drift.Vendor, drift.Model)
		if err != nil {
			return err
		}
		if current != nil {
			// The platform rate moved after detection; this drift no longer
			// describes the live row.
			if !current.InputRatePer1K.Equal(drift.OldInputRatePer1K) ||
				!current.OutputRatePer1K.Equal(drift.OldOutputRatePer1K) {
				return domain.ErrStaleDrift
			}
			err = s.rates.Update(ctx, tx, current.ID, map[string]any{
				"active":     false,
				"updated_at": now,
			})
			if err != nil {
				return err
			}
		}

		replacement := &ratedomain.VendorRate{
			ID:              s.genID.Generate(),
			Vendor:          drift.Vendor,
			Model:           drift.Model,
			InputRatePer1K:  drift.NewInputRatePer1K,
			OutputRatePer1K: drift.NewOutputRatePer1K,
			UnitType:        "tokens",
			Active:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.rates.Insert(ctx, tx, replacement); err != nil {
			return err
		}

		drift.Status = domain.DriftApplied
		drift.ResolvedAt = &now
		drift.UpdatedAt = now
		return tx.Model(&domain.PriceDrift{}).Where("id = ?", drift.ID).Updates(map[string]any{
			"status":      domain.DriftApplied,
			"resolved_at": now,
			"updated_at":  now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &drift, nil
}

func (s *Service) Ignore(ctx context.Context, driftID snowflake.ID) (*domain.PriceDrift, error) {
	var drift domain.PriceDrift
	err := s.db.WithContext(ctx).Where("id = ?", driftID).First(&drift).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrDriftNotFound
		}
		return nil, err
	}
	if drift.Status != domain.DriftPending {
		return nil, domain.ErrDriftResolved
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Model(&domain.PriceDrift{}).
		Where("id = ? AND status = ?", drift.ID, domain.DriftPending).
		Updates(map[string]any{
			"status":      domain.DriftIgnored,
			"resolved_at": now,
			"updated_at":  now,
		}).Error
	if err != nil {
		return nil, err
	}
	drift.Status = domain.DriftIgnored
	drift.ResolvedAt = &now
	drift.UpdatedAt = now
	return &drift, nil
}

// reconcile matches one normalized catalog entry against the platform rate
// table, creating the rate, leaving it alone, or recording a pending drift.
func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, entry normalizedEntry, report *domain.SyncReport) error {
	current, err := s.rates.FindGlobalForUpdate(ctx, tx, entry.vendor, entry.model)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	if current == nil {
		rate := &ratedomain.VendorRate{
			ID:              s.genID.Generate(),
			Vendor:          entry.vendor,
			Model:           entry.model,
			InputRatePer1K:  entry.inputRate,
			OutputRatePer1K: entry.outputRate,
			UnitType:        "tokens",
			Active:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.rates.Insert(ctx, tx, rate); err != nil {
			return err
		}
		report.Created++
		return nil
	}

	fraction := decimal.Max(
		relativeChange(current.InputRatePer1K, entry.inputRate),
		relativeChange(current.OutputRatePer1K, entry.outputRate),
	)
	if fraction.LessThanOrEqual(s.threshold) {
		report.Unchanged++
		return nil
	}

	if err := s.recordDrift(ctx, tx, current, entry, fraction, now); err != nil {
		return err
	}
	report.Drifted++
	s.metrics.DriftsDetected.Inc()
	return nil
}

// recordDrift creates the pending drift for the pair, or refreshes the
// existing pending row in place.
func (s *Service) recordDrift(ctx context.Context, tx *gorm.DB, current *ratedomain.VendorRate, entry normalizedEntry, fraction decimal.Decimal, now time.Time) error {
	var pending domain.PriceDrift
	err := tx.Where("vendor_name = ? AND model_name = ? AND status = ?",
		entry.vendor, entry.model, domain.DriftPending).
		First(&pending).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	if err == nil {
		return tx.Model(&domain.PriceDrift{}).Where("id = ?", pending.ID).Updates(map[string]any{
			"old_input_rate_per_1k":  current.InputRatePer1K,
			"old_output_rate_per_1k": current.OutputRatePer1K,
			"new_input_rate_per_1k":  entry.inputRate,
			"new_output_rate_per_1k": entry.outputRate,
			"drift_fraction":         fraction,
			"detected_at":            now,
			"updated_at":             now,
		}).Error
	}

	return tx.Create(&domain.PriceDrift{
		ID:                 s.genID.Generate(),
		Vendor:             entry.vendor,
		Model:              entry.model,
		OldInputRatePer1K:  current.InputRatePer1K,
		OldOutputRatePer1K: current.OutputRatePer1K,
		NewInputRatePer1K:  entry.inputRate,
		NewOutputRatePer1K: entry.outputRate,
		DriftFraction:      fraction,
		Status:             domain.DriftPending,
		DetectedAt:         now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}).Error
}

// normalize maps one raw catalog entry onto a platform (vendor, model) pair
// with rates in cents per 1K tokens. ok is false when the entry belongs to an
// untracked vendor, is deprecated, or carries no usable prices.
func (s *Service) normalize(key string, raw domain.CatalogEntry, today time.Time) (normalizedEntry, bool) {
	vendor, model := splitVendorModel(key, raw.Provider)
	if vendor == "" || model == "" {
		return normalizedEntry{}, false
	}

	if raw.DeprecationDate != "" {
		// An unparseable date is treated as "not deprecated" rather than
		// silently dropping a live model.
		if deprecated, err := time.Parse("2006-01-02", raw.DeprecationDate); err == nil && deprecated.Before(today) {
			return normalizedEntry{}, false
		}
	}

	input := perTokenRate(raw.InputCostPerToken, raw.InputCostPerCharacter)
	output := perTokenRate(raw.OutputCostPerToken, raw.OutputCostPerCharacter)
	if input.IsZero() && output.IsZero() {
		return normalizedEntry{}, false
	}

	return normalizedEntry{
		vendor:     vendor,
		model:      model,
		inputRate:  input,
		outputRate: output,
	}, true
}

// splitVendorModel resolves the platform vendor from the key prefix when
// present, else from the provider label.
func splitVendorModel(key, provider string) (string, string) {
	if idx := strings.Index(key, "/"); idx > 0 {
		if vendor, ok := trackedVendors[key[:idx]]; ok {
			return vendor, key[idx+1:]
		}
		return "", ""
	}
	for label, vendor := range trackedVendors {
		if provider == label || strings.HasPrefix(provider, label+"-") {
			return vendor, key
		}
	}
	return "", ""
}

// perTokenRate converts the catalog's USD-per-token (or per-character) figure
// into cents per 1K tokens.
func perTokenRate(perToken, perChar float64) decimal.Decimal {
	if perToken > 0 {
		return decimal.NewFromFloat(perToken).Mul(usdToCentsPer1K)
	}
	if perChar > 0 {
		return decimal.NewFromFloat(perChar).Mul(charsPerToken).Mul(usdToCentsPer1K)
	}
	return decimal.Zero
}

// relativeChange is |next - old| / old, saturating at 1 when old is zero and
// next is not.
func relativeChange(old, next decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		if next.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	return next.Sub(old).Abs().Div(old.Abs())
}
