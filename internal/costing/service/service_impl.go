package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	ratedomain "github.com/profitlens/profitlens/internal/rate/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var per1k = decimal.NewFromInt(1000)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Resolver ratedomain.Resolver
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	resolver ratedomain.Resolver
}

func New(p ServiceParam) costingdomain.Calculator {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("costing.service"),
		genID:    p.GenID,
		resolver: p.Resolver,
	}
}

func (s *Service) ComputeCostEntries(ctx context.Context, db *gorm.DB, in costingdomain.Input, policy costingdomain.Policy) ([]costingdomain.CostEntry, error) {
	if in.EventID == 0 {
		return nil, costingdomain.ErrMissingEvent
	}
	if db == nil {
		db = s.db
	}
	if len(in.Lines) == 0 {
		return []costingdomain.CostEntry{}, nil
	}

	// Reprocessing must reproduce historical costs, so the strict policy also
	// accepts inactive rates.
	forLiveCosting := policy != costingdomain.PolicyStrict

	entries := make([]costingdomain.CostEntry, 0, len(in.Lines))
	for _, line := range in.Lines {
		model := line.Model
		if model == "" {
			model = in.FallbackModel
		}

		resolution, err := s.resolver.Resolve(ctx, db, line.Vendor, model, in.OrgID, forLiveCosting)
		if err != nil {
			return nil, err
		}

		entry, err := s.buildEntry(in, line, model, resolution, policy)
		if err != nil {
			return nil, err
		}
		if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) buildEntry(in costingdomain.Input, line costingdomain.VendorCostLine, model string, resolution ratedomain.Resolution, policy costingdomain.Policy) (costingdomain.CostEntry, error) {
	entry := costingdomain.CostEntry{
		ID:        s.genID.Generate(),
		EventID:   in.EventID,
		EventKind: in.EventKind,
		Vendor:    line.Vendor,
		Model:     model,
		UnitCount: line.UnitCount,
		UnitType:  line.UnitType,
	}

	if resolution.Found() {
		rate := resolution.Rate
		entry.AmountCents = lineCost(line, rate)
		if entry.UnitType == "" {
			entry.UnitType = rate.UnitType
		}
		entry.Metadata = datatypes.JSONMap{
			"rate_source":        costingdomain.RateSourceVendorRate,
			"rate_scope":         string(resolution.Kind),
			"model_name":         model,
			"input_rate_per_1k":  rate.InputRatePer1K.String(),
			"output_rate_per_1k": rate.OutputRatePer1K.String(),
		}
		return entry, nil
	}

	switch policy {
	case costingdomain.PolicyStrict:
		return costingdomain.CostEntry{}, &costingdomain.RateNotFoundError{Vendor: line.Vendor, Model: model}

	case costingdomain.PolicyTelemetry:
		if line.RawAmountCents != nil {
			entry.AmountCents = *line.RawAmountCents
			entry.Metadata = datatypes.JSONMap{"rate_source": costingdomain.RateSourceRawFallback}
			return entry, nil
		}
		fallthrough

	default:
		s.log.Warn("no vendor rate found, creating zero-cost entry",
			zap.String("vendor", line.Vendor),
			zap.String("model", model),
		)
		entry.AmountCents = decimal.Zero
		if entry.UnitType == "" {
			entry.UnitType = "tokens"
		}
		entry.Metadata = datatypes.JSONMap{
			"rate_source": costingdomain.RateSourceMissingRate,
			"model_name":  model,
		}
		return entry, nil
	}
}

// lineCost is inputUnits*inputRate/1000 + outputUnits*outputRate/1000 in exact
// decimal cents.
func lineCost(line costingdomain.VendorCostLine, rate *ratedomain.VendorRate) decimal.Decimal {
	input := decimal.NewFromInt(line.InputUnits).Mul(rate.InputRatePer1K).Div(per1k)
	output := decimal.NewFromInt(line.OutputUnits).Mul(rate.OutputRatePer1K).Div(per1k)
	return input.Add(output)
}
