package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/organization/domain"
	"github.com/profitlens/profitlens/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  repository.Repository[domain.Organization]
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Organization]
}

func New(p ServiceParam) domain.Service {
	return &Service{
		log:   p.Log.Named("organization.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	periodDays := req.MarginAlertPeriodDays
	if periodDays <= 0 {
		periodDays = 30
	}
	record := &domain.Organization{
		ID:                      s.genID.Generate(),
		Name:                    name,
		MarginAlertThresholdBps: req.MarginAlertThresholdBps,
		MarginAlertPeriodDays:   periodDays,
		DriftThreshold:          decimal.Zero,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	record, err := s.repo.FindOne(ctx, &domain.Organization{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Organization, error) {
	records, err := s.repo.Find(ctx, &domain.Organization{})
	if err != nil {
		return nil, err
	}
	orgs := make([]domain.Organization, 0, len(records))
	for _, record := range records {
		orgs = append(orgs, *record)
	}
	return orgs, nil
}

func (s *Service) UpdateSettings(ctx context.Context, id snowflake.ID, req domain.UpdateSettingsRequest) (*domain.Organization, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if req.MarginAlertThresholdBps != nil {
		updates["margin_alert_threshold_bps"] = *req.MarginAlertThresholdBps
	}
	if req.MarginAlertPeriodDays != nil && *req.MarginAlertPeriodDays > 0 {
		updates["margin_alert_period_days"] = *req.MarginAlertPeriodDays
	}
	if req.DriftThreshold != nil {
		threshold, err := decimal.NewFromString(*req.DriftThreshold)
		if err != nil || threshold.IsNegative() {
			return nil, domain.ErrInvalidDriftThreshold
		}
		updates["drift_threshold"] = threshold
	}

	if err := s.repo.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
