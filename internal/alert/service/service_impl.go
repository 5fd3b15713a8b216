package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	"github.com/profitlens/profitlens/internal/clock"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	orgdomain "github.com/profitlens/profitlens/internal/organization/domain"
	pkgdb "github.com/profitlens/profitlens/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Orgs     orgdomain.Service
	Margins  margindomain.Aggregator
	Notifier alertdomain.Notifier
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	orgs     orgdomain.Service
	margins  margindomain.Aggregator
	notifier alertdomain.Notifier
	metrics  *metrics.Metrics
}

func New(p ServiceParam) alertdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("alert.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		orgs:     p.Orgs,
		margins:  p.Margins,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// EvaluateEvent applies the rules to the single event's own result, never a
// windowed aggregate: one money-losing event inside an otherwise healthy
// period still raises an alert.
func (s *Service) EvaluateEvent(ctx context.Context, orgID snowflake.ID, customerID *snowflake.ID, eventType string, result margindomain.Result) error {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}

	if customerID != nil {
		if err := s.evaluate(ctx, org, alertdomain.DimensionCustomer, customerID.String(), result); err != nil {
			return err
		}
	}
	if eventType != "" {
		if err := s.evaluate(ctx, org, alertdomain.DimensionEventType, eventType, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CheckOrganization(ctx context.Context, orgID snowflake.ID) error {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}
	window := s.alertWindow(org)

	customers, err := s.margins.CustomerMargins(ctx, orgID, window)
	if err != nil {
		return err
	}
	for _, cust := range customers {
		if err := s.evaluate(ctx, org, alertdomain.DimensionCustomer, cust.CustomerID.String(), cust.Margin); err != nil {
			return err
		}
	}

	eventTypes, err := s.margins.EventTypeMargins(ctx, orgID, window)
	if err != nil {
		return err
	}
	for _, et := range eventTypes {
		if err := s.evaluate(ctx, org, alertdomain.DimensionEventType, et.EventType, et.Margin); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Acknowledge(ctx context.Context, orgID, alertID snowflake.ID, actor, notes string) (*alertdomain.MarginAlert, error) {
	var alert alertdomain.MarginAlert
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, alertID).
		First(&alert).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, alertdomain.ErrNotFound
		}
		return nil, err
	}
	if alert.AcknowledgedAt != nil {
		return nil, alertdomain.ErrAlreadyAcknowledged
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Model(&alertdomain.MarginAlert{}).
		Where("id = ? AND acknowledged_at IS NULL", alert.ID).
		Updates(map[string]any{
			"acknowledged_at": now,
			"acknowledged_by": actor,
			"notes":           notes,
			"updated_at":      now,
		}).Error
	if err != nil {
		return nil, err
	}
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	alert.Notes = notes
	alert.UpdatedAt = now
	return &alert, nil
}

func (s *Service) ListOpen(ctx context.Context, orgID snowflake.ID) ([]alertdomain.MarginAlert, error) {
	var alerts []alertdomain.MarginAlert
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND acknowledged_at IS NULL", orgID).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

// evaluate applies the rules in precedence order: a negative margin always
// wins over a below-threshold breach, and a dimension with neither revenue
// nor cost is skipped entirely.
func (s *Service) evaluate(ctx context.Context, org *orgdomain.Organization, dim alertdomain.Dimension, key string, result margindomain.Result) error {
	if result.RevenueCents.IsZero() && result.CostCents.IsZero() {
		return nil
	}

	var (
		alertType    alertdomain.AlertType
		thresholdBps int64
		message      string
	)
	switch {
	case result.MarginCents.IsNegative():
		alertType = alertdomain.AlertNegativeMargin
		message = fmt.Sprintf("Negative margin for %s %s: %s cents on %s cents revenue",
			dim, key, result.MarginCents, result.RevenueCents)
	case org.MarginAlertThresholdBps > 0 && result.MarginBps < org.MarginAlertThresholdBps:
		alertType = alertdomain.AlertBelowThreshold
		thresholdBps = org.MarginAlertThresholdBps
		message = fmt.Sprintf("Margin for %s %s at %d bps, below the %d bps threshold",
			dim, key, result.MarginBps, org.MarginAlertThresholdBps)
	default:
		return nil
	}

	now := s.clock.Now()
	alert := alertdomain.MarginAlert{
		ID:           s.genID.Generate(),
		OrgID:        org.ID,
		AlertType:    alertType,
		Dimension:    dim,
		DimensionKey: key,
		Message:      message,
		RevenueCents: result.RevenueCents,
		CostCents:    result.CostCents,
		MarginCents:  result.MarginCents,
		MarginBps:    result.MarginBps,
		ThresholdBps: thresholdBps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		// An open alert for this key already exists; the condition is known.
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil
		}
		return err
	}

	s.metrics.AlertsRaised.Inc()
	s.log.Warn("margin alert raised",
		zap.String("org_id", org.ID.String()),
		zap.String("alert_type", string(alertType)),
		zap.String("dimension", string(dim)),
		zap.String("dimension_key", key),
		zap.Int64("margin_bps", result.MarginBps),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, alert)
	}
	return nil
}

func (s *Service) alertWindow(org *orgdomain.Organization) *margindomain.Window {
	days := org.MarginAlertPeriodDays
	if days <= 0 {
		days = 30
	}
	end := s.clock.Now()
	return &margindomain.Window{
		Start: end.Add(-time.Duration(days) * 24 * time.Hour),
		End:   end,
	}
}
