package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/profitlens/profitlens/internal/clock"
	"github.com/profitlens/profitlens/internal/customer/domain"
	pkgdb "github.com/profitlens/profitlens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) FindOrCreate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, externalID, name string) (*domain.Customer, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrInvalidExternalID
	}
	if db == nil {
		db = s.db
	}

	existing, err := s.repo.FindByExternalID(ctx, db, orgID, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	record := &domain.Customer{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ExternalID: externalID,
		Name:       strings.TrimSpace(name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.repo.Insert(ctx, db, record)
	if err == nil {
		return record, nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return nil, err
	}

	// Lost the creation race; the winner's row is authoritative.
	winner, err := s.repo.FindByExternalID(ctx, db, orgID, externalID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, domain.ErrNotFound
	}
	return winner, nil
}

func (s *Service) ReplaceSubscriptionRevenue(ctx context.Context, orgID snowflake.ID, revenues map[string]int64) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}

	// A mid-batch failure must leave every revenue figure unchanged, so the
	// whole snapshot applies in one transaction.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		synced := make([]string, 0, len(revenues))

		for billingID, monthlyCents := range revenues {
			billingID := strings.TrimSpace(billingID)
			if billingID == "" {
				continue
			}
			synced = append(synced, billingID)

			existing, err := s.repo.FindByBillingCustomerID(ctx, tx, orgID, billingID)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := s.updateRevenue(tx, existing.ID, monthlyCents, now); err != nil {
					return err
				}
				continue
			}

			record := &domain.Customer{
				ID:                              s.genID.Generate(),
				OrgID:                           orgID,
				ExternalID:                      billingID,
				Name:                            billingID,
				BillingCustomerID:               &billingID,
				MonthlySubscriptionRevenueCents: monthlyCents,
				CreatedAt:                       now,
				UpdatedAt:                       now,
			}
			if err := s.repo.Insert(ctx, tx, record); err != nil {
				if !pkgdb.IsDuplicateKeyErr(err) {
					return err
				}
				winner, ferr := s.repo.FindByExternalID(ctx, tx, orgID, billingID)
				if ferr != nil {
					return ferr
				}
				if winner == nil {
					return domain.ErrNotFound
				}
				if err := tx.Model(&domain.Customer{}).Where("id = ?", winner.ID).Updates(map[string]any{
					"billing_customer_id":                billingID,
					"monthly_subscription_revenue_cents": monthlyCents,
					"updated_at":                         now,
				}).Error; err != nil {
					return err
				}
			}
		}

		// Subscriptions that disappeared from the snapshot no longer produce
		// revenue; zero them rather than leaving stale figures.
		stmt := tx.Model(&domain.Customer{}).
			Where("org_id = ?", orgID).
			Where("billing_customer_id IS NOT NULL AND billing_customer_id != ''")
		if len(synced) > 0 {
			stmt = stmt.Where("billing_customer_id NOT IN ?", synced)
		}
		return stmt.Updates(map[string]any{
			"monthly_subscription_revenue_cents": 0,
			"updated_at":                         now,
		}).Error
	})
}

func (s *Service) GetByID(ctx context.Context, orgID, id snowflake.ID) (*domain.Customer, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) updateRevenue(tx *gorm.DB, id snowflake.ID, monthlyCents int64, now time.Time) error {
	return tx.Model(&domain.Customer{}).Where("id = ?", id).Updates(map[string]any{
		"monthly_subscription_revenue_cents": monthlyCents,
		"updated_at":                         now,
	}).Error
}
