package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound              = errors.New("organization_not_found")
	ErrInvalidName           = errors.New("invalid_organization_name")
	ErrInvalidDriftThreshold = errors.New("invalid_drift_threshold")
)

type CreateOrganizationRequest struct {
	Name                    string
	MarginAlertThresholdBps int64
	MarginAlertPeriodDays   int
}

type UpdateSettingsRequest struct {
	MarginAlertThresholdBps *int64
	MarginAlertPeriodDays   *int
	DriftThreshold          *string
}

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	UpdateSettings(ctx context.Context, id snowflake.ID, req UpdateSettingsRequest) (*Organization, error)
}
