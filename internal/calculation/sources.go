package calculation

import (
	"context"
	"time"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// ParameterResolver looks up parameter set versions
type ParameterResolver interface {
	ResolveActive(model domain.Model, asOf time.Time) (*domain.ParameterSet, error)
	GetVersion(versionID string) (*domain.ParameterSet, error)
}

// DataSource supplies the raw series a calculation consumes. Each fetch
// returns only data known at asOf.
type DataSource interface {
	FetchIndicatorPeriods(ctx context.Context, entityID string, asOf time.Time, lookback int) ([]domain.IndicatorPeriod, error)
	FetchLossRecords(ctx context.Context, entityID string, asOf time.Time, windowYears int) ([]domain.LossRecord, error)
	FetchSegmentIncome(ctx context.Context, entityID string, asOf time.Time, lookback int) ([]domain.SegmentIncome, error)
}

// OverrideSource supplies the approved supervisor override, if any, that
// replaces the capital figure of a run
type OverrideSource interface {
	InEffect(entityID string, method domain.Method, asOf time.Time) (*domain.SupervisorOverride, bool)
}
