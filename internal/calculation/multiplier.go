package calculation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// multiplierScale is the number of decimal places kept on the multiplier
const multiplierScale = 10

// MultiplierInput is everything the gating rules and the multiplier look at
type MultiplierInput struct {
	Bucket            int
	YearsWithData     int
	MinDataYears      int
	PolicyOverride    bool
	AverageAnnualLoss decimal.Decimal
	BracketTotal      decimal.Decimal
}

// MultiplierResult is the multiplier together with the state that produced it
type MultiplierResult struct {
	Value  decimal.Decimal
	State  domain.GateState
	Reason string
	// Ratio is average annual loss over the bracket total; zero when gated
	Ratio   decimal.Decimal
	Anomaly string
}

// GateRule forces the multiplier to one when it applies
type GateRule struct {
	State   domain.GateState
	Applies func(in MultiplierInput) bool
	Reason  func(in MultiplierInput) string
}

// DefaultGateRules are evaluated in order; the first that applies wins
func DefaultGateRules() []GateRule {
	return []GateRule{
		{
			State:   domain.GateBucketFloor,
			Applies: func(in MultiplierInput) bool { return in.Bucket <= 1 },
			Reason: func(MultiplierInput) string {
				return "business indicator is in the first bracket"
			},
		},
		{
			State:   domain.GateInsufficientData,
			Applies: func(in MultiplierInput) bool { return in.YearsWithData < in.MinDataYears },
			Reason: func(in MultiplierInput) string {
				return fmt.Sprintf("%d years of loss data, %d required", in.YearsWithData, in.MinDataYears)
			},
		},
		{
			State:   domain.GateByPolicyOverride,
			Applies: func(in MultiplierInput) bool { return in.PolicyOverride },
			Reason: func(MultiplierInput) string {
				return "loss multiplier disabled by policy"
			},
		},
	}
}

// MultiplierCalculator decides the loss multiplier
type MultiplierCalculator struct {
	Rules []GateRule
}

// NewMultiplierCalculator creates a calculator with the default gate rules
func NewMultiplierCalculator() *MultiplierCalculator {
	return &MultiplierCalculator{Rules: DefaultGateRules()}
}

// Calculate runs the gate rules and, if none applies, computes the multiplier
func (mc *MultiplierCalculator) Calculate(in MultiplierInput) MultiplierResult {
	for _, rule := range mc.Rules {
		if rule.Applies(in) {
			return MultiplierResult{
				Value:  decimal.NewFromInt(1),
				State:  rule.State,
				Reason: rule.Reason(in),
				Ratio:  decimal.Zero,
			}
		}
	}

	if !in.BracketTotal.IsPositive() {
		return MultiplierResult{
			Value:   decimal.NewFromInt(1),
			State:   domain.GateComputed,
			Reason:  "bracket total is not positive",
			Ratio:   decimal.Zero,
			Anomaly: "bracket total is not positive; loss multiplier set to 1",
		}
	}

	ratio := in.AverageAnnualLoss.DivRound(in.BracketTotal, 16)
	if !ratio.IsPositive() {
		return MultiplierResult{
			Value:   decimal.NewFromInt(1),
			State:   domain.GateComputed,
			Reason:  "no net loss in window",
			Ratio:   ratio,
			Anomaly: "loss ratio is not positive; loss multiplier set to 1",
		}
	}

	return MultiplierResult{
		Value:  LossMultiplier(ratio),
		State:  domain.GateComputed,
		Reason: "computed from loss history",
		Ratio:  ratio,
	}
}

// LossMultiplier returns ln(e - 1 + ratio). It is 1 at ratio 1, below 1 for
// smaller ratios and above 1 for larger ones.
func LossMultiplier(ratio decimal.Decimal) decimal.Decimal {
	v := math.Log(math.E - 1 + ratio.InexactFloat64())
	return decimal.NewFromFloat(v).Round(multiplierScale)
}
