package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/profitlens/profitlens/internal/customer/domain"
	invoicedomain "github.com/profitlens/profitlens/internal/invoice/domain"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)


type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	InvoiceRepo invoicedomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	invoiceRepo invoicedomain.Repository
}

func New(p ServiceParam) margindomain.Aggregator {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("margin.service"),
		invoiceRepo: p.InvoiceRepo,
	}
}

type sumRow struct {
	Revenue decimal.Decimal
	Cost    decimal.Decimal
	Margin  decimal.Decimal
}

func (s *Service) CustomerMargin(ctx context.Context, orgID, customerID snowflake.ID, window *margindomain.Window) (margindomain.Result, error) {
	sums, err := s.sumEvents(ctx, orgID, window, "customer_id = ?", customerID)
	if err != nil {
		return margindomain.ZeroResult(), err
	}

	var monthlyCents int64
	err = s.db.WithContext(ctx).Model(&customerdomain.Customer{}).
		Select("COALESCE(monthly_subscription_revenue_cents, 0)").
		Where("org_id = ? AND id = ?", orgID, customerID).
		Limit(1).
		Scan(&monthlyCents).Error
	if err != nil {
		return margindomain.ZeroResult(), err
	}

	effective, err := s.effectiveWindow(ctx, orgID, window, "customer_id = ?", customerID)
	if err != nil {
		return margindomain.ZeroResult(), err
	}
	subRevenue := prorateMonthly(monthlyCents, effective)

	return blend(sums, subRevenue), nil
}

func (s *Service) EventTypeMargin(ctx context.Context, orgID snowflake.ID, eventType string, window *margindomain.Window) (margindomain.Result, error) {
	sums, err := s.sumEvents(ctx, orgID, window, "event_type = ?", eventType)
	if err != nil {
		return margindomain.ZeroResult(), err
	}
	return eventOnly(sums), nil
}

func (s *Service) OrganizationMargin(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) (margindomain.Result, error) {
	sums, err := s.sumEvents(ctx, orgID, window)
	if err != nil {
		return margindomain.ZeroResult(), err
	}

	subRevenue, err := s.invoiceRevenue(ctx, orgID, window)
	if err != nil {
		return margindomain.ZeroResult(), err
	}

	return blend(sums, subRevenue), nil
}

func (s *Service) CustomerMargins(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) ([]margindomain.CustomerResult, error) {
	effective, err := s.effectiveWindow(ctx, orgID, window)
	if err != nil {
		return nil, err
	}

	stmt := s.db.WithContext(ctx).
		Table("events").
		Select(`customers.id AS customer_id,
			customers.name AS customer_name,
			customers.external_id AS customer_external_id,
			customers.monthly_subscription_revenue_cents AS monthly_cents,
			COALESCE(SUM(events.revenue_cents), 0) AS revenue,
			COALESCE(SUM(events.total_cost_cents), 0) AS cost`).
		Joins("JOIN customers ON customers.id = events.customer_id").
		Where("events.org_id = ? AND events.status = ?", orgID, "processed").
		Group("customers.id, customers.name, customers.external_id, customers.monthly_subscription_revenue_cents")
	stmt = applyWindow(stmt, window, "events.occurred_at")

	var rows []struct {
		CustomerID         snowflake.ID
		CustomerName       string
		CustomerExternalID string
		MonthlyCents       int64
		Revenue            decimal.Decimal
		Cost               decimal.Decimal
	}
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]margindomain.CustomerResult, 0, len(rows))
	seen := make(map[snowflake.ID]struct{}, len(rows))
	for _, row := range rows {
		seen[row.CustomerID] = struct{}{}
		subRevenue := prorateMonthly(row.MonthlyCents, effective)
		totalRevenue := row.Revenue.Add(subRevenue)
		totalMargin := totalRevenue.Sub(row.Cost)
		results = append(results, margindomain.CustomerResult{
			CustomerID:         row.CustomerID,
			CustomerName:       row.CustomerName,
			CustomerExternalID: row.CustomerExternalID,
			Margin: margindomain.Result{
				RevenueCents:             totalRevenue,
				CostCents:                row.Cost,
				MarginCents:              totalMargin,
				MarginBps:                margindomain.ComputeBps(totalMargin, totalRevenue),
				EventRevenueCents:        row.Revenue,
				SubscriptionRevenueCents: subRevenue,
			},
		})
	}

	// Subscription-only customers still count toward the rollup even with no
	// events in the window.
	var subOnly []customerdomain.Customer
	if err := s.db.WithContext(ctx).
		Where("org_id = ? AND monthly_subscription_revenue_cents != 0", orgID).
		Find(&subOnly).Error; err != nil {
		return nil, err
	}
	for _, cust := range subOnly {
		if _, ok := seen[cust.ID]; ok {
			continue
		}
		subRevenue := prorateMonthly(cust.MonthlySubscriptionRevenueCents, effective)
		bps := int64(0)
		if subRevenue.IsPositive() {
			bps = 10_000
		}
		results = append(results, margindomain.CustomerResult{
			CustomerID:         cust.ID,
			CustomerName:       cust.Name,
			CustomerExternalID: cust.ExternalID,
			Margin: margindomain.Result{
				RevenueCents:             subRevenue,
				CostCents:                decimal.Zero,
				MarginCents:              subRevenue,
				MarginBps:                bps,
				EventRevenueCents:        decimal.Zero,
				SubscriptionRevenueCents: subRevenue,
			},
		})
	}

	return results, nil
}

func (s *Service) EventTypeMargins(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) ([]margindomain.EventTypeResult, error) {
	stmt := s.db.WithContext(ctx).
		Table("events").
		Select(`event_type,
			COUNT(*) AS event_count,
			COALESCE(SUM(revenue_cents), 0) AS revenue,
			COALESCE(SUM(total_cost_cents), 0) AS cost,
			COALESCE(SUM(margin_cents), 0) AS margin`).
		Where("org_id = ? AND status = ?", orgID, "processed").
		Group("event_type")
	stmt = applyWindow(stmt, window, "occurred_at")

	var rows []struct {
		EventType  string
		EventCount int64
		Revenue    decimal.Decimal
		Cost       decimal.Decimal
		Margin     decimal.Decimal
	}
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]margindomain.EventTypeResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, margindomain.EventTypeResult{
			EventType:  row.EventType,
			EventCount: row.EventCount,
			Margin:     eventOnly(sumRow{Revenue: row.Revenue, Cost: row.Cost, Margin: row.Margin}),
		})
	}
	return results, nil
}

func (s *Service) VendorCostBreakdown(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) (map[string]decimal.Decimal, error) {
	rows, err := s.breakdownRows(ctx, orgID, window,
		"cost_entries.vendor_name AS vendor, '' AS model",
		"cost_entries.vendor_name")
	if err != nil {
		return nil, err
	}
	breakdown := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		breakdown[row.Vendor] = row.Amount
	}
	return breakdown, nil
}

func (s *Service) ModelCostBreakdown(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) (map[string]decimal.Decimal, error) {
	rows, err := s.breakdownRows(ctx, orgID, window,
		"cost_entries.vendor_name AS vendor, cost_entries.model_name AS model",
		"cost_entries.vendor_name, cost_entries.model_name")
	if err != nil {
		return nil, err
	}
	breakdown := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		if row.Model == "" {
			continue
		}
		breakdown[row.Vendor+"/"+row.Model] = row.Amount
	}
	return breakdown, nil
}

type breakdownRow struct {
	Vendor string
	Model  string
	Amount decimal.Decimal
}

func (s *Service) breakdownRows(ctx context.Context, orgID snowflake.ID, window *margindomain.Window, selectExpr, groupExpr string) ([]breakdownRow, error) {
	stmt := s.db.WithContext(ctx).
		Table("cost_entries").
		Select(selectExpr+", COALESCE(SUM(cost_entries.amount_cents), 0) AS amount").
		Joins("JOIN events ON events.id = cost_entries.event_id").
		Where("events.org_id = ? AND events.status = ?", orgID, "processed").
		Group(groupExpr)
	stmt = applyWindow(stmt, window, "events.occurred_at")

	var rows []breakdownRow
	err := stmt.Scan(&rows).Error
	return rows, err
}

// sumEvents totals processed events matching the extra condition, with zeros
// for an empty set.
func (s *Service) sumEvents(ctx context.Context, orgID snowflake.ID, window *margindomain.Window, conds ...any) (sumRow, error) {
	stmt := s.db.WithContext(ctx).
		Table("events").
		Select(`COALESCE(SUM(revenue_cents), 0) AS revenue,
			COALESCE(SUM(total_cost_cents), 0) AS cost,
			COALESCE(SUM(margin_cents), 0) AS margin`).
		Where("org_id = ? AND status = ?", orgID, "processed")
	if len(conds) > 0 {
		stmt = stmt.Where(conds[0], conds[1:]...)
	}
	stmt = applyWindow(stmt, window, "occurred_at")

	var row sumRow
	if err := stmt.Scan(&row).Error; err != nil {
		return sumRow{}, err
	}
	return row, nil
}

// effectiveWindow is the explicit window, else the [min, max+1d) span of the
// matching processed events, else nil (no proration basis).
func (s *Service) effectiveWindow(ctx context.Context, orgID snowflake.ID, window *margindomain.Window, conds ...any) (*margindomain.Window, error) {
	if window != nil {
		return window, nil
	}

	stmt := s.db.WithContext(ctx).
		Table("events").
		Select("MIN(occurred_at) AS min_at, MAX(occurred_at) AS max_at").
		Where("org_id = ? AND status = ?", orgID, "processed")
	if len(conds) > 0 {
		stmt = stmt.Where(conds[0], conds[1:]...)
	}

	var row struct {
		MinAt *time.Time
		MaxAt *time.Time
	}
	if err := stmt.Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.MinAt == nil || row.MaxAt == nil {
		return nil, nil
	}
	return &margindomain.Window{
		Start: dateOf(*row.MinAt),
		End:   dateOf(*row.MaxAt).AddDate(0, 0, 1),
	}, nil
}

// invoiceRevenue prorates each invoice over the reporting window. Without a
// window every invoice contributes its full amount.
func (s *Service) invoiceRevenue(ctx context.Context, orgID snowflake.ID, window *margindomain.Window) (decimal.Decimal, error) {
	invoices, err := s.invoiceRepo.ListForOrg(ctx, s.db, orgID)
	if err != nil {
		return decimal.Zero, err
	}
	if window == nil {
		total := lo.SumBy(invoices, func(inv invoicedomain.ExternalInvoice) int64 {
			return inv.AmountCents
		})
		return decimal.NewFromInt(total), nil
	}

	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(prorateInvoice(inv, *window))
	}
	return total, nil
}

// prorateInvoice allocates amount * overlapDays / periodDays, rounded to the
// nearest cent. No overlap contributes zero.
func prorateInvoice(inv invoicedomain.ExternalInvoice, window margindomain.Window) decimal.Decimal {
	periodStart := dateOf(inv.PeriodStart)
	periodEnd := dateOf(inv.PeriodEnd)
	periodDays := daysBetween(periodStart, periodEnd)
	if periodDays <= 0 {
		return decimal.Zero
	}

	overlapStart := maxDate(periodStart, dateOf(window.Start))
	overlapEnd := minDate(periodEnd, dateOf(window.End))
	overlapDays := daysBetween(overlapStart, overlapEnd)
	if overlapDays <= 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(inv.AmountCents).
		Mul(decimal.NewFromInt(int64(overlapDays))).
		Div(decimal.NewFromInt(int64(periodDays))).
		Round(0)
}

// prorateMonthly walks the window month by month, allocating the monthly
// figure by days elapsed over days in that month, rounded at the end.
func prorateMonthly(monthlyCents int64, window *margindomain.Window) decimal.Decimal {
	if window == nil || monthlyCents == 0 {
		return decimal.Zero
	}

	start := dateOf(window.Start)
	end := dateOf(window.End)
	monthly := decimal.NewFromInt(monthlyCents)

	total := decimal.Zero
	cursor := start
	for cursor.Before(end) {
		monthEnd := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		sliceEnd := minDate(monthEnd, end)
		days := daysBetween(cursor, sliceEnd)
		daysInMonth := daysBetween(
			time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC),
			monthEnd,
		)
		total = total.Add(monthly.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(daysInMonth))))
		cursor = sliceEnd
	}
	return total.Round(0)
}

func blend(sums sumRow, subRevenue decimal.Decimal) margindomain.Result {
	totalRevenue := sums.Revenue.Add(subRevenue)
	totalMargin := totalRevenue.Sub(sums.Cost)
	return margindomain.Result{
		RevenueCents:             totalRevenue,
		CostCents:                sums.Cost,
		MarginCents:              totalMargin,
		MarginBps:                margindomain.ComputeBps(totalMargin, totalRevenue),
		EventRevenueCents:        sums.Revenue,
		SubscriptionRevenueCents: subRevenue,
	}
}

func eventOnly(sums sumRow) margindomain.Result {
	return margindomain.Result{
		RevenueCents:             sums.Revenue,
		CostCents:                sums.Cost,
		MarginCents:              sums.Margin,
		MarginBps:                margindomain.ComputeBps(sums.Margin, sums.Revenue),
		EventRevenueCents:        sums.Revenue,
		SubscriptionRevenueCents: decimal.Zero,
	}
}

func applyWindow(stmt *gorm.DB, window *margindomain.Window, column string) *gorm.DB {
	if window == nil {
		return stmt
	}
	return stmt.Where(column+" >= ? AND "+column+" < ?", window.Start, window.End)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
