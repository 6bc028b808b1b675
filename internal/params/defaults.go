package params

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Values used when an optional parameter is absent from a set
const (
	DefaultAveragingYears     = 3
	DefaultLossWindowYears    = 10
	DefaultMinLossDataYears   = 5
	DefaultFlatLookback       = 3
	DefaultSegmentedLookback  = 3
	DefaultLossComponentScale = 15
)

var (
	// DefaultLeverage converts capital to risk-weighted assets
	DefaultLeverage = decimal.NewFromFloat(12.5)
)

// Regulatory segment names and betas for the segmented method
var DefaultSegmentCoefficients = map[string]decimal.Decimal{
	"retail_banking":     decimal.NewFromFloat(0.12),
	"commercial_banking": decimal.NewFromFloat(0.15),
	"trading_sales":      decimal.NewFromFloat(0.18),
	"corporate_finance":  decimal.NewFromFloat(0.18),
	"payment_settlement": decimal.NewFromFloat(0.18),
	"agency_services":    decimal.NewFromFloat(0.15),
	"asset_management":   decimal.NewFromFloat(0.12),
	"retail_brokerage":   decimal.NewFromFloat(0.12),
}

func numeric(name string, v decimal.Decimal) domain.Parameter {
	return domain.Parameter{Name: name, Kind: domain.KindNumeric, Value: v}
}

func integer(name string, v int64) domain.Parameter {
	return numeric(name, decimal.NewFromInt(v))
}

func flag(name string, v bool) domain.Parameter {
	return domain.Parameter{Name: name, Kind: domain.KindBoolean, Flag: v}
}

// DefaultPrimary returns the standard primary-method parameters in crore:
// 12% up to 8,000, 15% up to 2,40,000 and 18% above.
func DefaultPrimary(versionID string, effective time.Time) domain.ParameterSet {
	return domain.ParameterSet{
		ModelName:     domain.ModelPrimary,
		VersionID:     versionID,
		EffectiveDate: effective,
		Status:        domain.StatusDraft,
		Parameters: []domain.Parameter{
			integer(BracketThreshold(1), 8000),
			numeric(BracketCoefficient(1), decimal.NewFromFloat(0.12)),
			integer(BracketThreshold(2), 240000),
			numeric(BracketCoefficient(2), decimal.NewFromFloat(0.15)),
			numeric(BracketCoefficient(3), decimal.NewFromFloat(0.18)),
			integer(AveragingYears, DefaultAveragingYears),
			integer(LossWindowYears, DefaultLossWindowYears),
			integer(MinLossDataYears, DefaultMinLossDataYears),
			numeric(MinLossThreshold, decimal.NewFromFloat(0.01)),
			integer(LossComponentMultiplier, DefaultLossComponentScale),
			numeric(LeverageConstant, DefaultLeverage),
			flag(PolicyOverride, false),
		},
	}
}

// DefaultFlat returns the standard flat-method parameters
func DefaultFlat(versionID string, effective time.Time) domain.ParameterSet {
	return domain.ParameterSet{
		ModelName:     domain.ModelFlat,
		VersionID:     versionID,
		EffectiveDate: effective,
		Status:        domain.StatusDraft,
		Parameters: []domain.Parameter{
			numeric(FlatCoefficient, decimal.NewFromFloat(0.15)),
			integer(FlatLookbackPeriods, DefaultFlatLookback),
			numeric(LeverageConstant, DefaultLeverage),
		},
	}
}

// DefaultSegmented returns the standard segmented-method parameters
func DefaultSegmented(versionID string, effective time.Time) domain.ParameterSet {
	set := domain.ParameterSet{
		ModelName:     domain.ModelSegmented,
		VersionID:     versionID,
		EffectiveDate: effective,
		Status:        domain.StatusDraft,
	}
	for _, segment := range sortedKeys(DefaultSegmentCoefficients) {
		set.Parameters = append(set.Parameters, numeric(SegmentCoefficient(segment), DefaultSegmentCoefficients[segment]))
	}
	set.Parameters = append(set.Parameters,
		integer(SegmentedLookback, DefaultSegmentedLookback),
		numeric(LeverageConstant, DefaultLeverage),
	)
	return set
}
