package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Policy selects how a missing rate is handled. The two intake paths diverge
// on purpose: the usage pipeline records a zero-cost entry so one unknown
// model cannot block the pipeline, the telemetry pipeline additionally trusts
// caller-supplied amounts, and reprocessing treats a missing rate as fatal.
type Policy int

const (
	// PolicyLenient writes a zero-amount entry tagged missing_rate.
	PolicyLenient Policy = iota
	// PolicyTelemetry falls back to the caller's raw amount, then to a
	// zero-amount entry.
	PolicyTelemetry
	// PolicyStrict fails with ErrRateNotFound.
	PolicyStrict
)

// Input carries everything the calculator needs about the owning event,
// decoupled from the event model itself.
type Input struct {
	EventID   snowflake.ID
	EventKind string
	OrgID     snowflake.ID
	Lines     []VendorCostLine
	// FallbackModel fills a line's missing model name (telemetry senders often
	// put it in event metadata instead of on every line).
	FallbackModel string
}

type Calculator interface {
	// ComputeCostEntries resolves and persists one CostEntry per raw line,
	// returning the created entries. Runs against db, which is expected to be
	// the open transaction of the owning state-machine step.
	ComputeCostEntries(ctx context.Context, db *gorm.DB, in Input, policy Policy) ([]CostEntry, error)
}

var ErrMissingEvent = errors.New("missing_event")

// RateNotFoundError is the typed failure of the strict policy.
type RateNotFoundError struct {
	Vendor string
	Model  string
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("no vendor rate for %s/%s", e.Vendor, e.Model)
}

func IsRateNotFound(err error) bool {
	var target *RateNotFoundError
	return errors.As(err, &target)
}
