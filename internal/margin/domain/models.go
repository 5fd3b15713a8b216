package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Window is a half-open reporting period [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Result is one aggregated margin view. Every field defaults to zero — never
// null — so downstream formatting and sorting never branch on nullability.
// Money fields are exact decimal cents.
type Result struct {
	RevenueCents decimal.Decimal `json:"revenue_cents"`
	CostCents    decimal.Decimal `json:"cost_cents"`
	MarginCents  decimal.Decimal `json:"margin_cents"`
	// MarginBps is floor(margin * 10000 / revenue), and 0 when revenue is 0.
	MarginBps int64 `json:"margin_bps"`

	// EventRevenueCents and SubscriptionRevenueCents split the blended total so
	// callers can tell usage-based from subscription-based revenue.
	EventRevenueCents        decimal.Decimal `json:"event_revenue_cents"`
	SubscriptionRevenueCents decimal.Decimal `json:"subscription_revenue_cents"`
}

// ZeroResult is the empty aggregate with all money fields at zero.
func ZeroResult() Result {
	return Result{
		RevenueCents:             decimal.Zero,
		CostCents:                decimal.Zero,
		MarginCents:              decimal.Zero,
		EventRevenueCents:        decimal.Zero,
		SubscriptionRevenueCents: decimal.Zero,
	}
}

var tenThousand = decimal.NewFromInt(10_000)

// ComputeBps is floor(margin * 10000 / revenue), defined as 0 when revenue is
// not positive so callers never divide by zero.
func ComputeBps(margin, revenue decimal.Decimal) int64 {
	if !revenue.IsPositive() {
		return 0
	}
	return margin.Mul(tenThousand).Div(revenue).Floor().IntPart()
}

// SingleEvent is the Result for one processed event taken on its own figures,
// independent of any reporting window.
func SingleEvent(revenueCents int64, costCents decimal.Decimal) Result {
	revenue := decimal.NewFromInt(revenueCents)
	margin := revenue.Sub(costCents)
	return Result{
		RevenueCents:             revenue,
		CostCents:                costCents,
		MarginCents:              margin,
		MarginBps:                ComputeBps(margin, revenue),
		EventRevenueCents:        revenue,
		SubscriptionRevenueCents: decimal.Zero,
	}
}

type CustomerResult struct {
	CustomerID         snowflake.ID `json:"customer_id"`
	CustomerName       string       `json:"customer_name"`
	CustomerExternalID string       `json:"customer_external_id"`
	Margin             Result       `json:"margin"`
}

type EventTypeResult struct {
	EventType  string `json:"event_type"`
	EventCount int64  `json:"event_count"`
	Margin     Result `json:"margin"`
}
