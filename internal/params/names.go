package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Parameter names shared across models
const (
	AveragingYears          = "bi_averaging_years"
	LossWindowYears         = "loss_window_years"
	MinLossDataYears        = "min_loss_data_years"
	MinLossThreshold        = "min_loss_threshold"
	LossComponentMultiplier = "loss_component_multiplier"
	LeverageConstant        = "leverage_constant"
	PolicyOverride          = "loss_multiplier_policy_override"
	FlatCoefficient         = "flat_coefficient"
	FlatLookbackPeriods     = "flat_lookback_periods"
	SegmentedLookback       = "segmented_lookback_periods"
)

// BracketThreshold names the upper bound of bracket i (1-based)
func BracketThreshold(i int) string {
	return fmt.Sprintf("bracket.%d.threshold", i)
}

// BracketCoefficient names the marginal coefficient of bracket i (1-based)
func BracketCoefficient(i int) string {
	return fmt.Sprintf("bracket.%d.coefficient", i)
}

// SegmentCoefficient names the coefficient of a business segment
func SegmentCoefficient(segment string) string {
	return "segment." + segment + ".coefficient"
}

// bracketPart splits "bracket.<n>.<field>"
func bracketPart(name string) (index int, field string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] != "bracket" {
		return 0, "", false
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 || n > MaxBrackets {
		return 0, "", false
	}
	if parts[2] != "threshold" && parts[2] != "coefficient" {
		return 0, "", false
	}
	return n, parts[2], true
}

// segmentPart splits "segment.<name>.coefficient"
func segmentPart(name string) (segment string, ok bool) {
	if !strings.HasPrefix(name, "segment.") || !strings.HasSuffix(name, ".coefficient") {
		return "", false
	}
	segment = strings.TrimSuffix(strings.TrimPrefix(name, "segment."), ".coefficient")
	return segment, segment != ""
}

// MaxBrackets bounds the bracket index accepted in parameter names
const MaxBrackets = 20

// Upper bounds for integer parameters, in years or periods
const (
	maxAveragingYears = 10
	maxWindowYears    = 50
	maxLookback       = 20
)

type paramSpec struct {
	kind    domain.ParameterKind
	integer bool
	// max bounds an integer parameter
	max int64
}

// fixedParams lists the non-indexed parameters each model accepts
var fixedParams = map[domain.Model]map[string]paramSpec{
	domain.ModelPrimary: {
		AveragingYears:          {kind: domain.KindNumeric, integer: true, max: maxAveragingYears},
		LossWindowYears:         {kind: domain.KindNumeric, integer: true, max: maxWindowYears},
		MinLossDataYears:        {kind: domain.KindNumeric, integer: true, max: maxWindowYears},
		MinLossThreshold:        {kind: domain.KindNumeric},
		LossComponentMultiplier: {kind: domain.KindNumeric},
		LeverageConstant:        {kind: domain.KindNumeric},
		PolicyOverride:          {kind: domain.KindBoolean},
	},
	domain.ModelFlat: {
		FlatCoefficient:     {kind: domain.KindNumeric},
		FlatLookbackPeriods: {kind: domain.KindNumeric, integer: true, max: maxLookback},
		LeverageConstant:    {kind: domain.KindNumeric},
	},
	domain.ModelSegmented: {
		SegmentedLookback: {kind: domain.KindNumeric, integer: true, max: maxLookback},
		LeverageConstant:  {kind: domain.KindNumeric},
	},
}

// specFor returns the rules for a parameter name under model
func specFor(model domain.Model, name string) (paramSpec, bool) {
	if s, ok := fixedParams[model][name]; ok {
		return s, true
	}
	switch model {
	case domain.ModelPrimary:
		if _, _, ok := bracketPart(name); ok {
			return paramSpec{kind: domain.KindNumeric}, true
		}
	case domain.ModelSegmented:
		if _, ok := segmentPart(name); ok {
			return paramSpec{kind: domain.KindNumeric}, true
		}
	}
	return paramSpec{}, false
}
