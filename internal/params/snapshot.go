package params

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Snapshot is the typed, read-only view of one validated parameter set.
// A calculation receives a Snapshot explicitly and never reads shared state.
type Snapshot struct {
	Model         domain.Model
	VersionID     string
	EffectiveDate time.Time
	ContentDigest string

	// primary
	Brackets                []domain.Bracket
	AveragingYears          int
	LossWindowYears         int
	MinLossDataYears        int
	MinLossThreshold        decimal.Decimal
	LossComponentMultiplier decimal.Decimal
	PolicyOverride          bool

	// flat
	FlatCoefficient decimal.Decimal
	FlatLookback    int

	// segmented
	SegmentCoefficients map[string]decimal.Decimal
	SegmentedLookback   int

	LeverageConstant decimal.Decimal
}

// Decode validates set and converts it to a Snapshot, filling defaults for
// optional parameters that are absent.
func Decode(set *domain.ParameterSet) (*Snapshot, error) {
	if err := Check(set); err != nil {
		return nil, err
	}

	s := &Snapshot{
		Model:                   set.ModelName,
		VersionID:               set.VersionID,
		EffectiveDate:           set.EffectiveDate,
		ContentDigest:           set.ContentDigest,
		AveragingYears:          DefaultAveragingYears,
		LossWindowYears:         DefaultLossWindowYears,
		MinLossDataYears:        DefaultMinLossDataYears,
		MinLossThreshold:        decimal.Zero,
		LossComponentMultiplier: decimal.NewFromInt(DefaultLossComponentScale),
		FlatLookback:            DefaultFlatLookback,
		SegmentedLookback:       DefaultSegmentedLookback,
		LeverageConstant:        DefaultLeverage,
	}

	thresholds := make(map[int]decimal.Decimal)
	coefficients := make(map[int]decimal.Decimal)
	for _, p := range set.Parameters {
		if i, field, ok := bracketPart(p.Name); ok {
			if field == "threshold" {
				thresholds[i] = p.Value
			} else {
				coefficients[i] = p.Value
			}
			continue
		}
		if segment, ok := segmentPart(p.Name); ok {
			if s.SegmentCoefficients == nil {
				s.SegmentCoefficients = make(map[string]decimal.Decimal)
			}
			s.SegmentCoefficients[segment] = p.Value
			continue
		}
		switch p.Name {
		case AveragingYears:
			s.AveragingYears = int(p.Value.IntPart())
		case LossWindowYears:
			s.LossWindowYears = int(p.Value.IntPart())
		case MinLossDataYears:
			s.MinLossDataYears = int(p.Value.IntPart())
		case MinLossThreshold:
			s.MinLossThreshold = p.Value
		case LossComponentMultiplier:
			s.LossComponentMultiplier = p.Value
		case PolicyOverride:
			s.PolicyOverride = p.Flag
		case FlatCoefficient:
			s.FlatCoefficient = p.Value
		case FlatLookbackPeriods:
			s.FlatLookback = int(p.Value.IntPart())
		case SegmentedLookback:
			s.SegmentedLookback = int(p.Value.IntPart())
		case LeverageConstant:
			s.LeverageConstant = p.Value
		}
	}

	for i := 1; i <= len(coefficients); i++ {
		s.Brackets = append(s.Brackets, domain.Bracket{
			Threshold:   thresholds[i],
			Coefficient: coefficients[i],
		})
	}
	return s, nil
}

// Segments returns the configured segment names in sorted order
func (s *Snapshot) Segments() []string {
	return sortedKeys(s.SegmentCoefficients)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
