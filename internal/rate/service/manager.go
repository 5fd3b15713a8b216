package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/rate/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ManagerParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Manager struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewManager(p ManagerParam) domain.Manager {
	return &Manager{
		db:    p.DB,
		log:   p.Log.Named("rate.manager"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Upsert retires the scope's current active (vendor, model) row and inserts
// the new one, keeping rate history append-only.
func (m *Manager) Upsert(ctx context.Context, req domain.UpsertRateRequest) (*domain.VendorRate, error) {
	vendor := strings.TrimSpace(req.Vendor)
	model := strings.TrimSpace(req.Model)
	if vendor == "" || model == "" {
		return nil, domain.ErrInvalidRate
	}
	inputRate, err := decimal.NewFromString(req.InputRatePer1K)
	if err != nil || inputRate.IsNegative() {
		return nil, domain.ErrInvalidRate
	}
	outputRate, err := decimal.NewFromString(req.OutputRatePer1K)
	if err != nil || outputRate.IsNegative() {
		return nil, domain.ErrInvalidRate
	}
	unitType := strings.TrimSpace(req.UnitType)
	if unitType == "" {
		unitType = "tokens"
	}

	var created *domain.VendorRate
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current *domain.VendorRate
		var err error
		if req.OrgID != nil {
			current, err = m.repo.FindScoped(ctx, tx, *req.OrgID, vendor, model, true)
		} else {
			current, err = m.repo.FindGlobalForUpdate(ctx, tx, vendor, model)
		}
		if err != nil {
			return err
		}

		now := m.clock.Now()
		if current != nil && current.Active {
			err = m.repo.Update(ctx, tx, current.ID, map[string]any{
				"active":     false,
				"updated_at": now,
			})
			if err != nil {
				return err
			}
		}

		created = &domain.VendorRate{
			ID:              m.genID.Generate(),
			OrgID:           req.OrgID,
			Vendor:          vendor,
			Model:           model,
			InputRatePer1K:  inputRate,
			OutputRatePer1K: outputRate,
			UnitType:        unitType,
			Active:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return m.repo.Insert(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// List returns the scope's rates, active rows first, newest within each group.
func (m *Manager) List(ctx context.Context, orgID *snowflake.ID) ([]domain.VendorRate, error) {
	stmt := m.db.WithContext(ctx).Model(&domain.VendorRate{})
	if orgID != nil {
		stmt = stmt.Where("org_id = ?", *orgID)
	} else {
		stmt = stmt.Where("org_id IS NULL")
	}
	var rates []domain.VendorRate
	err := stmt.Order("active DESC, vendor_name, model_name, updated_at DESC").Find(&rates).Error
	return rates, err
}
