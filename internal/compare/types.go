package compare

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// ComparisonResult is one method's outcome within a comparison
type ComparisonResult struct {
	Method     domain.Method    `json:"method"`
	RunID      string           `json:"runId,omitempty"`
	Capital    decimal.Decimal  `json:"capital"`
	RWA        decimal.Decimal  `json:"rwa"`
	GateState  domain.GateState `json:"gateState,omitempty"`
	GateReason string           `json:"gateReason,omitempty"`
	Anomalies  []string         `json:"anomalies,omitempty"`
	// Error is set when the method could not be calculated; the figures are then zero
	Error string `json:"error,omitempty"`

	// Comparison to base
	CapitalDiffFromBase decimal.Decimal `json:"capitalDiffFromBase"`
	CapitalPctFromBase  decimal.Decimal `json:"capitalPctFromBase"`
	RWADiffFromBase     decimal.Decimal `json:"rwaDiffFromBase"`
}

// Available reports whether the method produced figures
func (r *ComparisonResult) Available() bool {
	return r.Error == ""
}

// ComparisonSet is a side-by-side view of several methods for one entity
type ComparisonSet struct {
	EntityID           string             `json:"entityId"`
	AsOf               time.Time          `json:"asOf"`
	BaseMethod         domain.Method      `json:"baseMethod"`
	BaseResult         *ComparisonResult  `json:"baseResult"`
	AlternativeResults []ComparisonResult `json:"alternativeResults"`
	Observations       []string           `json:"observations"`
}

// FromResult builds the comparison row for a finished calculation
func FromResult(res *domain.CalculationResult) ComparisonResult {
	return ComparisonResult{
		Method:     res.Method,
		RunID:      res.RunID,
		Capital:    res.CapitalRequirement,
		RWA:        res.RiskWeightedAssets,
		GateState:  res.GateState,
		GateReason: res.GateReason,
		Anomalies:  append([]string(nil), res.Anomalies...),
	}
}

// CalculateComparison fills the deltas of alt against base
func CalculateComparison(alt, base ComparisonResult) ComparisonResult {
	if !alt.Available() || !base.Available() {
		return alt
	}
	alt.CapitalDiffFromBase = alt.Capital.Sub(base.Capital)
	alt.RWADiffFromBase = alt.RWA.Sub(base.RWA)
	if !base.Capital.IsZero() {
		alt.CapitalPctFromBase = alt.CapitalDiffFromBase.
			Div(base.Capital).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return alt
}

// GenerateObservations summarises where the alternatives land against the base
func GenerateObservations(set *ComparisonSet) []string {
	observations := []string{}
	if set.BaseResult == nil || len(set.AlternativeResults) == 0 {
		return observations
	}

	var highest, lowest *ComparisonResult
	for i := range set.AlternativeResults {
		alt := &set.AlternativeResults[i]
		if !alt.Available() {
			observations = append(observations,
				"Unavailable: "+string(alt.Method)+" could not be calculated ("+alt.Error+")")
			continue
		}
		if highest == nil || alt.Capital.GreaterThan(highest.Capital) {
			highest = alt
		}
		if lowest == nil || alt.Capital.LessThan(lowest.Capital) {
			lowest = alt
		}
	}

	base := set.BaseResult
	if highest != nil && highest.Capital.GreaterThan(base.Capital) {
		observations = append(observations,
			"Highest requirement: "+string(highest.Method)+" exceeds "+string(base.Method)+
				" by "+highest.CapitalDiffFromBase.StringFixed(2)+" ("+highest.CapitalPctFromBase.StringFixed(2)+"%)")
	}
	if lowest != nil && lowest.Capital.LessThan(base.Capital) {
		observations = append(observations,
			"Lowest requirement: "+string(lowest.Method)+" is "+lowest.CapitalDiffFromBase.Abs().StringFixed(2)+
				" below "+string(base.Method))
	}
	if base.GateState != "" && base.GateState != domain.GateComputed && base.GateState != domain.GateNotApplicable {
		observations = append(observations,
			"Base method loss multiplier gated: "+string(base.GateState))
	}
	return observations
}
