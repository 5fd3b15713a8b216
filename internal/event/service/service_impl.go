package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	"github.com/profitlens/profitlens/internal/clock"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
	customerdomain "github.com/profitlens/profitlens/internal/customer/domain"
	"github.com/profitlens/profitlens/internal/event/domain"
	"github.com/profitlens/profitlens/internal/event/liveevents"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
	"github.com/profitlens/profitlens/internal/observability/metrics"
	"github.com/profitlens/profitlens/internal/orgcontext"
	pkgdb "github.com/profitlens/profitlens/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Customers customerdomain.Service
	Costing   costingdomain.Calculator
	Alerts    alertdomain.Service
	Hub       *liveevents.Hub
	Metrics   *metrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	customers customerdomain.Service
	costing   costingdomain.Calculator
	alerts    alertdomain.Service
	hub       *liveevents.Hub
	metrics   *metrics.Metrics
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("event.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		customers: p.Customers,
		costing:   p.Costing,
		alerts:    p.Alerts,
		hub:       p.Hub,
		metrics:   p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.CreateEventRequest) (domain.IngestResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.IngestResult{}, domain.ErrInvalidOrganization
	}
	if err := s.validate(&req); err != nil {
		return domain.IngestResult{}, err
	}

	now := s.clock.Now()
	record := &domain.Event{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		IdempotencyKey:     req.IdempotencyKey,
		CustomerExternalID: req.CustomerExternalID,
		CustomerName:       req.CustomerName,
		EventType:          req.EventType,
		RevenueCents:       req.RevenueCents,
		VendorCostsRaw:     datatypes.NewJSONSlice(req.VendorCosts),
		Metadata:           datatypes.JSONMap(req.Metadata),
		OccurredAt:         req.OccurredAt.UTC(),
		Status:             domain.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil && !pkgdb.IsDuplicateKeyErr(res.Error) {
		return domain.IngestResult{}, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		s.metrics.EventsIngested.WithLabelValues(costingdomain.EventKindUsage, "created").Inc()
		return domain.IngestResult{Event: record, Created: true}, nil
	}

	// Replay: the original row is authoritative, the submission is discarded.
	var existing domain.Event
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, req.IdempotencyKey).
		First(&existing).Error
	if err != nil {
		return domain.IngestResult{}, err
	}
	s.metrics.EventsIngested.WithLabelValues(costingdomain.EventKindUsage, "duplicate").Inc()
	return domain.IngestResult{Event: &existing, Created: false}, nil
}

func (s *Service) IngestTelemetry(ctx context.Context, req domain.CreateEventRequest) (domain.TelemetryIngestResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.TelemetryIngestResult{}, domain.ErrInvalidOrganization
	}
	if err := s.validate(&req); err != nil {
		return domain.TelemetryIngestResult{}, err
	}

	now := s.clock.Now()
	record := &domain.TelemetryEvent{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		IdempotencyKey:     req.IdempotencyKey,
		CustomerExternalID: req.CustomerExternalID,
		CustomerName:       req.CustomerName,
		EventType:          req.EventType,
		RevenueCents:       req.RevenueCents,
		VendorCostsRaw:     datatypes.NewJSONSlice(req.VendorCosts),
		Metadata:           datatypes.JSONMap(req.Metadata),
		OccurredAt:         req.OccurredAt.UTC(),
		Status:             domain.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil && !pkgdb.IsDuplicateKeyErr(res.Error) {
		return domain.TelemetryIngestResult{}, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		s.metrics.EventsIngested.WithLabelValues(costingdomain.EventKindTelemetry, "created").Inc()
		return domain.TelemetryIngestResult{Event: record, Created: true}, nil
	}

	var existing domain.TelemetryEvent
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, req.IdempotencyKey).
		First(&existing).Error
	if err != nil {
		return domain.TelemetryIngestResult{}, err
	}
	s.metrics.EventsIngested.WithLabelValues(costingdomain.EventKindTelemetry, "duplicate").Inc()
	return domain.TelemetryIngestResult{Event: &existing, Created: false}, nil
}

// ProcessEvent drives pending -> customer_linked -> processed. Each step is
// its own transaction behind a row lock, so a crash between steps leaves a
// consistent intermediate state for the redrive loop.
func (s *Service) ProcessEvent(ctx context.Context, eventID snowflake.ID) error {
	var event domain.Event
	err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrEventNotFound
		}
		return err
	}
	if event.Status.Terminal() {
		return nil
	}

	if event.Status == domain.StatusPending {
		if err := s.linkCustomer(ctx, &event); err != nil {
			return s.handleStepError(ctx, &event, err)
		}
	}
	if event.Status == domain.StatusCustomerLinked {
		if err := s.processCosts(ctx, &event); err != nil {
			return s.handleStepError(ctx, &event, err)
		}
	}

	if event.Status == domain.StatusProcessed {
		s.metrics.EventsProcessed.WithLabelValues(costingdomain.EventKindUsage, string(domain.StatusProcessed)).Inc()
		s.afterProcessed(ctx, usageView(&event))
	}
	return nil
}

// ProcessTelemetryEvent runs linking and costing in one transaction; the
// telemetry table has no observable intermediate state.
func (s *Service) ProcessTelemetryEvent(ctx context.Context, eventID snowflake.ID) error {
	var event domain.TelemetryEvent
	err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrEventNotFound
		}
		return err
	}
	if event.Status.Terminal() {
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.TelemetryEvent
		if err := pkgdb.LockForUpdate(tx).Where("id = ?", event.ID).First(&current).Error; err != nil {
			return err
		}
		if current.Status.Terminal() {
			event = current
			return nil
		}

		cust, err := s.customers.FindOrCreate(ctx, tx, current.OrgID, current.CustomerExternalID, current.CustomerName)
		if err != nil {
			return err
		}
		if cust.OrgID != current.OrgID {
			return domain.Fatal(domain.ErrTenantMismatch)
		}

		if err := tx.Where("event_id = ? AND event_kind = ?", current.ID, costingdomain.EventKindTelemetry).
			Delete(&costingdomain.CostEntry{}).Error; err != nil {
			return err
		}
		entries, err := s.costing.ComputeCostEntries(ctx, tx, costingdomain.Input{
			EventID:       current.ID,
			EventKind:     costingdomain.EventKindTelemetry,
			OrgID:         current.OrgID,
			Lines:         current.VendorCostsRaw,
			FallbackModel: metadataModel(current.Metadata),
		}, costingdomain.PolicyTelemetry)
		if err != nil {
			return err
		}

		total := sumAmounts(entries)
		margin := decimal.NewFromInt(current.RevenueCents).Sub(total)
		now := s.clock.Now()
		err = tx.Model(&domain.TelemetryEvent{}).Where("id = ?", current.ID).Updates(map[string]any{
			"customer_id":      cust.ID,
			"total_cost_cents": total,
			"margin_cents":     margin,
			"status":           domain.StatusProcessed,
			"updated_at":       now,
		}).Error
		if err != nil {
			return err
		}

		current.CustomerID = &cust.ID
		current.TotalCostCents = &total
		current.MarginCents = &margin
		current.Status = domain.StatusProcessed
		event = current
		return nil
	})
	if err != nil {
		if domain.IsFatal(err) {
			s.markTelemetryFailed(ctx, event.ID, err)
			s.metrics.EventsProcessed.WithLabelValues(costingdomain.EventKindTelemetry, string(domain.StatusFailed)).Inc()
		}
		return err
	}

	s.metrics.EventsProcessed.WithLabelValues(costingdomain.EventKindTelemetry, string(domain.StatusProcessed)).Inc()
	if event.Status == domain.StatusProcessed {
		s.afterProcessed(ctx, telemetryView(&event))
	}
	return nil
}

func (s *Service) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	var events []domain.Event
	stmt := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []domain.Status{domain.StatusPending, domain.StatusCustomerLinked}, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.Find(&events).Error
	return events, err
}

func (s *Service) GetByID(ctx context.Context, orgID, id snowflake.ID) (*domain.Event, error) {
	var event domain.Event
	err := s.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (s *Service) linkCustomer(ctx context.Context, event *domain.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Event
		if err := pkgdb.LockForUpdate(tx).Where("id = ?", event.ID).First(&current).Error; err != nil {
			return err
		}
		// A concurrent processor may have advanced the event already.
		if current.Status != domain.StatusPending {
			*event = current
			return nil
		}

		cust, err := s.customers.FindOrCreate(ctx, tx, current.OrgID, current.CustomerExternalID, current.CustomerName)
		if err != nil {
			return err
		}
		if cust.OrgID != current.OrgID {
			return domain.Fatal(domain.ErrTenantMismatch)
		}

		now := s.clock.Now()
		err = tx.Model(&domain.Event{}).Where("id = ?", current.ID).Updates(map[string]any{
			"customer_id": cust.ID,
			"status":      domain.StatusCustomerLinked,
			"updated_at":  now,
		}).Error
		if err != nil {
			return err
		}
		current.CustomerID = &cust.ID
		current.Status = domain.StatusCustomerLinked
		*event = current
		return nil
	})
}

func (s *Service) processCosts(ctx context.Context, event *domain.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Event
		if err := pkgdb.LockForUpdate(tx).Where("id = ?", event.ID).First(&current).Error; err != nil {
			return err
		}
		if current.Status != domain.StatusCustomerLinked {
			*event = current
			return nil
		}

		// A crash after writing entries but before the status flip leaves
		// orphans; clearing first keeps the step idempotent.
		if err := tx.Where("event_id = ? AND event_kind = ?", current.ID, costingdomain.EventKindUsage).
			Delete(&costingdomain.CostEntry{}).Error; err != nil {
			return err
		}
		entries, err := s.costing.ComputeCostEntries(ctx, tx, costingdomain.Input{
			EventID:   current.ID,
			EventKind: costingdomain.EventKindUsage,
			OrgID:     current.OrgID,
			Lines:     current.VendorCostsRaw,
		}, costingdomain.PolicyLenient)
		if err != nil {
			return err
		}

		total := sumAmounts(entries)
		margin := decimal.NewFromInt(current.RevenueCents).Sub(total)
		now := s.clock.Now()
		err = tx.Model(&domain.Event{}).Where("id = ?", current.ID).Updates(map[string]any{
			"total_cost_cents": total,
			"margin_cents":     margin,
			"status":           domain.StatusProcessed,
			"updated_at":       now,
		}).Error
		if err != nil {
			return err
		}
		current.TotalCostCents = &total
		current.MarginCents = &margin
		current.Status = domain.StatusProcessed
		*event = current
		return nil
	})
}

// handleStepError parks the event on fatal failures and re-raises everything,
// leaving transient failures in place for the redrive loop.
func (s *Service) handleStepError(ctx context.Context, event *domain.Event, err error) error {
	if !domain.IsFatal(err) {
		s.log.Warn("event step failed, leaving for redrive",
			zap.String("event_id", event.ID.String()),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
		return err
	}

	s.log.Error("event failed fatally",
		zap.String("event_id", event.ID.String()),
		zap.Error(err),
	)
	now := s.clock.Now()
	uerr := s.db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ? AND status NOT IN ?", event.ID, []domain.Status{domain.StatusProcessed, domain.StatusFailed}).
		Updates(map[string]any{"status": domain.StatusFailed, "updated_at": now}).Error
	if uerr != nil {
		s.log.Error("failed to park event", zap.String("event_id", event.ID.String()), zap.Error(uerr))
	}
	s.metrics.EventsProcessed.WithLabelValues(costingdomain.EventKindUsage, string(domain.StatusFailed)).Inc()
	return err
}

func (s *Service) markTelemetryFailed(ctx context.Context, id snowflake.ID, cause error) {
	s.log.Error("telemetry event failed fatally", zap.String("event_id", id.String()), zap.Error(cause))
	err := s.db.WithContext(ctx).Model(&domain.TelemetryEvent{}).
		Where("id = ? AND status NOT IN ?", id, []domain.Status{domain.StatusProcessed, domain.StatusFailed}).
		Updates(map[string]any{"status": domain.StatusFailed, "updated_at": s.clock.Now()}).Error
	if err != nil {
		s.log.Error("failed to park telemetry event", zap.String("event_id", id.String()), zap.Error(err))
	}
}

// processedView is the slice of a processed event the side effects need;
// usage and telemetry events share it.
type processedView struct {
	id           snowflake.ID
	orgID        snowflake.ID
	customerID   *snowflake.ID
	label        string
	eventType    string
	revenueCents int64
	cost         decimal.Decimal
	margin       decimal.Decimal
	occurredAt   time.Time
}

func usageView(event *domain.Event) processedView {
	return newProcessedView(event.ID, event.OrgID, event.CustomerID,
		event.CustomerName, event.CustomerExternalID, event.EventType,
		event.RevenueCents, event.TotalCostCents, event.MarginCents, event.OccurredAt)
}

func telemetryView(event *domain.TelemetryEvent) processedView {
	return newProcessedView(event.ID, event.OrgID, event.CustomerID,
		event.CustomerName, event.CustomerExternalID, event.EventType,
		event.RevenueCents, event.TotalCostCents, event.MarginCents, event.OccurredAt)
}

func newProcessedView(id, orgID snowflake.ID, customerID *snowflake.ID, name, externalID, eventType string, revenueCents int64, cost, margin *decimal.Decimal, occurredAt time.Time) processedView {
	view := processedView{
		id:           id,
		orgID:        orgID,
		customerID:   customerID,
		label:        name,
		eventType:    eventType,
		revenueCents: revenueCents,
		cost:         decimal.Zero,
		margin:       decimal.Zero,
		occurredAt:   occurredAt,
	}
	if view.label == "" {
		view.label = externalID
	}
	if cost != nil {
		view.cost = *cost
	}
	if margin != nil {
		view.margin = *margin
	}
	return view
}

// afterProcessed runs the best-effort side effects. Alerts are evaluated
// against the event's own margin, not a windowed aggregate, and neither the
// evaluation nor the live broadcast can roll the event back.
func (s *Service) afterProcessed(ctx context.Context, view processedView) {
	result := margindomain.SingleEvent(view.revenueCents, view.cost)
	if err := s.alerts.EvaluateEvent(ctx, view.orgID, view.customerID, view.eventType, result); err != nil {
		s.log.Warn("alert evaluation failed",
			zap.String("event_id", view.id.String()),
			zap.Error(err),
		)
	}

	s.hub.Publish(view.orgID.String(), liveevents.ProcessedEvent{
		Type:          "event.processed",
		EventID:       view.id.String(),
		CustomerLabel: view.label,
		EventType:     view.eventType,
		RevenueCents:  view.revenueCents,
		CostCents:     view.cost.String(),
		MarginCents:   view.margin.String(),
		OccurredAt:    view.occurredAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) validate(req *domain.CreateEventRequest) error {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return domain.ErrInvalidIdempotencyKey
	}
	req.CustomerExternalID = strings.TrimSpace(req.CustomerExternalID)
	if req.CustomerExternalID == "" {
		return domain.ErrInvalidCustomer
	}
	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" {
		return domain.ErrInvalidEventType
	}
	if req.RevenueCents < 0 || req.RevenueCents > domain.MaxRevenueCents {
		return domain.ErrInvalidRevenue
	}

	now := s.clock.Now()
	if req.OccurredAt.IsZero() {
		return domain.ErrInvalidOccurredAt
	}
	if req.OccurredAt.Before(now.Add(-domain.MaxOccurredAtAge)) ||
		req.OccurredAt.After(now.Add(domain.MaxOccurredAtAhead)) {
		return domain.ErrInvalidOccurredAt
	}

	for i := range req.VendorCosts {
		line := &req.VendorCosts[i]
		line.Vendor = strings.TrimSpace(line.Vendor)
		line.Model = strings.TrimSpace(line.Model)
		if line.Vendor == "" {
			return domain.ErrInvalidVendorCost
		}
		if line.InputUnits < 0 || line.InputUnits > domain.MaxUnitsPerLine ||
			line.OutputUnits < 0 || line.OutputUnits > domain.MaxUnitsPerLine ||
			line.UnitCount < 0 || line.UnitCount > domain.MaxUnitsPerLine {
			return domain.ErrInvalidVendorCost
		}
		if line.RawAmountCents != nil && line.RawAmountCents.IsNegative() {
			return domain.ErrInvalidVendorCost
		}
	}
	return nil
}

func sumAmounts(entries []costingdomain.CostEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.AmountCents)
	}
	return total
}

func metadataModel(meta datatypes.JSONMap) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta["model_name"].(string); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := meta["model"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
