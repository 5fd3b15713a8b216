package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	costingdomain "github.com/profitlens/profitlens/internal/costing/domain"
)

// Bounds enforced at the ingestion boundary.
const (
	MaxRevenueCents    = 10_000_000 // $100,000
	MaxUnitsPerLine    = 100_000_000
	MaxOccurredAtAge   = 90 * 24 * time.Hour
	MaxOccurredAtAhead = time.Hour
	MaxBatchSize       = 100
)

type CreateEventRequest struct {
	IdempotencyKey     string
	CustomerExternalID string
	CustomerName       string
	EventType          string
	RevenueCents       int64
	VendorCosts        []costingdomain.VendorCostLine
	Metadata           map[string]any
	OccurredAt         time.Time
}

// IngestResult reports what happened to one submission. A duplicate token
// returns the original event untouched.
type IngestResult struct {
	Event   *Event
	Created bool
}

type TelemetryIngestResult struct {
	Event   *TelemetryEvent
	Created bool
}

type Service interface {
	// Ingest validates and durably records an event, deduplicating on
	// (organization, idempotency key). The org ID comes from context.
	Ingest(ctx context.Context, req CreateEventRequest) (IngestResult, error)

	// IngestTelemetry is the telemetry intake variant; model names may arrive
	// via event metadata instead of per line.
	IngestTelemetry(ctx context.Context, req CreateEventRequest) (TelemetryIngestResult, error)

	// ProcessEvent drives the event through pending -> customer_linked ->
	// processed. Safe to call concurrently and repeatedly for the same event.
	ProcessEvent(ctx context.Context, eventID snowflake.ID) error

	// ProcessTelemetryEvent runs the combined link+cost transaction for a
	// telemetry event.
	ProcessTelemetryEvent(ctx context.Context, eventID snowflake.ID) error

	// ListStuck returns events parked in non-terminal states older than cutoff,
	// for the worker redrive loop.
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)

	GetByID(ctx context.Context, orgID, id snowflake.ID) (*Event, error)
}
