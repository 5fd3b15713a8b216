package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Resolver struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewResolver(p ResolverParam) domain.Resolver {
	return &Resolver{
		db:   p.DB,
		log:  p.Log.Named("rate.resolver"),
		repo: p.Repo,
	}
}

func (s *Resolver) Resolve(ctx context.Context, db *gorm.DB, vendor, model string, orgID snowflake.ID, forLiveCosting bool) (domain.Resolution, error) {
	vendor = strings.TrimSpace(vendor)
	model = strings.TrimSpace(model)
	if vendor == "" || model == "" {
		return domain.Resolution{Kind: domain.NotFound}, nil
	}
	if db == nil {
		db = s.db
	}

	if orgID != 0 {
		scoped, err := s.repo.FindScoped(ctx, db, orgID, vendor, model, forLiveCosting)
		if err != nil {
			return domain.Resolution{}, err
		}
		if scoped != nil {
			return domain.Resolution{Kind: domain.FoundOrgRate, Rate: scoped}, nil
		}
	}

	global, err := s.repo.FindGlobal(ctx, db, vendor, model, forLiveCosting)
	if err != nil {
		return domain.Resolution{}, err
	}
	if global != nil {
		return domain.Resolution{Kind: domain.FoundGlobalRate, Rate: global}, nil
	}

	return domain.Resolution{Kind: domain.NotFound}, nil
}
