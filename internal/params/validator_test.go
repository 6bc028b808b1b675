package params

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/domain"
)

var effective = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func fields(vs []domain.Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Field
	}
	return out
}

func setParam(set *domain.ParameterSet, name string, value decimal.Decimal) {
	for i := range set.Parameters {
		if set.Parameters[i].Name == name {
			set.Parameters[i].Value = value
			return
		}
	}
	set.Parameters = append(set.Parameters, domain.Parameter{Name: name, Kind: domain.KindNumeric, Value: value})
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	for _, set := range []domain.ParameterSet{
		DefaultPrimary("p1", effective),
		DefaultFlat("f1", effective),
		DefaultSegmented("s1", effective),
	} {
		t.Run(string(set.ModelName), func(t *testing.T) {
			assert.Empty(t, Validate(&set))
			assert.NoError(t, Check(&set))
		})
	}
}

func TestValidate_NonIncreasingThresholdsNamePair(t *testing.T) {
	set := DefaultPrimary("p1", effective)
	setParam(&set, BracketThreshold(2), decimal.NewFromInt(8000))

	vs := Validate(&set)
	require.Len(t, vs, 1)
	assert.Equal(t, "bracket.2.threshold", vs[0].Field)
	assert.Contains(t, vs[0].Message, "bracket.1.threshold")

	err := Check(&set)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, domain.ModelPrimary, ve.Model)
	assert.Equal(t, "p1", ve.VersionID)
}

func TestValidate_LastBracketThresholdIsIgnored(t *testing.T) {
	set := DefaultPrimary("p1", effective)
	// a stored cap on the open-ended bracket is not a cap and not checked
	setParam(&set, BracketThreshold(3), decimal.Zero)
	assert.Empty(t, Validate(&set))
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(set *domain.ParameterSet)
		want   []string
	}{
		{"missing version", func(s *domain.ParameterSet) { s.VersionID = " " }, []string{"version_id"}},
		{"missing effective date", func(s *domain.ParameterSet) { s.EffectiveDate = time.Time{} }, []string{"effective_date"}},
		{"negative coefficient", func(s *domain.ParameterSet) {
			setParam(s, BracketCoefficient(2), decimal.NewFromFloat(-0.15))
		}, []string{"bracket.2.coefficient"}},
		{"missing bounded threshold", func(s *domain.ParameterSet) {
			s.Parameters = s.Parameters[1:]
		}, []string{"bracket.1.threshold"}},
		{"gap in brackets", func(s *domain.ParameterSet) {
			setParam(s, BracketCoefficient(5), decimal.NewFromFloat(0.2))
		}, []string{"bracket.4.coefficient", "bracket.3.threshold", "bracket.4.threshold"}},
		{"unknown parameter", func(s *domain.ParameterSet) {
			setParam(s, "flat_coefficient", decimal.NewFromFloat(0.15))
		}, []string{"flat_coefficient"}},
		{"duplicate parameter", func(s *domain.ParameterSet) {
			s.Parameters = append(s.Parameters, s.Parameters[0])
		}, []string{"bracket.1.threshold"}},
		{"kind mismatch", func(s *domain.ParameterSet) {
			s.Parameters = append(s.Parameters[:len(s.Parameters)-1],
				domain.Parameter{Name: PolicyOverride, Kind: domain.KindNumeric, Value: decimal.NewFromInt(1)})
		}, []string{PolicyOverride}},
		{"fractional years", func(s *domain.ParameterSet) {
			setParam(s, AveragingYears, decimal.NewFromFloat(2.5))
		}, []string{AveragingYears}},
		{"zero window", func(s *domain.ParameterSet) {
			setParam(s, LossWindowYears, decimal.Zero)
			setParam(s, MinLossDataYears, decimal.NewFromInt(0))
		}, []string{LossWindowYears, MinLossDataYears}},
		{"window beyond bound", func(s *domain.ParameterSet) {
			setParam(s, LossWindowYears, decimal.NewFromInt(1_000_000_000))
		}, []string{LossWindowYears}},
		{"averaging beyond bound", func(s *domain.ParameterSet) {
			setParam(s, AveragingYears, decimal.NewFromInt(11))
		}, []string{AveragingYears}},
		{"bracket index beyond bound", func(s *domain.ParameterSet) {
			setParam(s, BracketCoefficient(MaxBrackets+1), decimal.NewFromFloat(0.2))
		}, []string{BracketCoefficient(MaxBrackets + 1)}},
		{"min data exceeds window", func(s *domain.ParameterSet) {
			setParam(s, MinLossDataYears, decimal.NewFromInt(11))
		}, []string{MinLossDataYears}},
		{"negative loss threshold", func(s *domain.ParameterSet) {
			setParam(s, MinLossThreshold, decimal.NewFromInt(-1))
		}, []string{MinLossThreshold}},
		{"zero leverage", func(s *domain.ParameterSet) {
			setParam(s, LeverageConstant, decimal.Zero)
		}, []string{LeverageConstant}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := DefaultPrimary("p1", effective)
			tt.mutate(&set)
			assert.ElementsMatch(t, tt.want, fields(Validate(&set)))
		})
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	set := DefaultPrimary("", time.Time{})
	setParam(&set, BracketCoefficient(1), decimal.NewFromFloat(-0.12))
	setParam(&set, LeverageConstant, decimal.NewFromInt(-1))

	assert.ElementsMatch(t,
		[]string{"version_id", "effective_date", "bracket.1.coefficient", LeverageConstant},
		fields(Validate(&set)))
}

func TestValidate_LegacyModels(t *testing.T) {
	flat := DefaultFlat("f1", effective)
	setParam(&flat, FlatCoefficient, decimal.NewFromFloat(1.5))
	assert.Equal(t, []string{FlatCoefficient}, fields(Validate(&flat)))

	noCoefficient := DefaultFlat("f2", effective)
	noCoefficient.Parameters = noCoefficient.Parameters[1:]
	assert.Equal(t, []string{FlatCoefficient}, fields(Validate(&noCoefficient)))

	seg := DefaultSegmented("s1", effective)
	setParam(&seg, SegmentCoefficient("retail_banking"), decimal.NewFromFloat(-0.1))
	assert.Equal(t, []string{"segment.retail_banking.coefficient"}, fields(Validate(&seg)))

	empty := domain.ParameterSet{ModelName: domain.ModelSegmented, VersionID: "s2", EffectiveDate: effective}
	assert.Equal(t, []string{"segment"}, fields(Validate(&empty)))
}

func TestValidate_UnknownModel(t *testing.T) {
	set := domain.ParameterSet{ModelName: "advanced", VersionID: "x", EffectiveDate: effective}
	assert.Equal(t, []string{"model"}, fields(Validate(&set)))
	assert.Equal(t, []string{"parameter_set"}, fields(Validate(nil)))
}
