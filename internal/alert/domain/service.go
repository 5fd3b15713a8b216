package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	margindomain "github.com/profitlens/profitlens/internal/margin/domain"
)

var (
	ErrNotFound            = errors.New("alert_not_found")
	ErrAlreadyAcknowledged = errors.New("alert_already_acknowledged")
)

// Notifier delivers a freshly created alert to an external channel. Failures
// are logged, never propagated: the alert row is the source of truth.
type Notifier interface {
	Notify(ctx context.Context, alert MarginAlert)
}

type Service interface {
	// EvaluateEvent checks one processed event's own figures against the
	// organization's rules, on the customer and event-type dimensions. A single
	// money-losing event must surface even when the surrounding aggregate is
	// healthy, so no windowed re-aggregation happens here.
	EvaluateEvent(ctx context.Context, orgID snowflake.ID, customerID *snowflake.ID, eventType string, result margindomain.Result) error

	// CheckOrganization sweeps every customer and event type of the org over its
	// rolling alert window.
	CheckOrganization(ctx context.Context, orgID snowflake.ID) error

	// Acknowledge closes the alert and re-arms its open key. Actor and notes
	// are recorded verbatim; both may be empty.
	Acknowledge(ctx context.Context, orgID, alertID snowflake.ID, actor, notes string) (*MarginAlert, error)
	ListOpen(ctx context.Context, orgID snowflake.ID) ([]MarginAlert, error)
}
