package calculation

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/params"
)

// PrimaryResult holds the primary method outputs and every retained intermediate
type PrimaryResult struct {
	Indicator     IndicatorAggregate
	Brackets      BracketResult
	Losses        LossAggregate
	Multiplier    MultiplierResult
	LossComponent decimal.Decimal
	Capital       decimal.Decimal
	RWA           decimal.Decimal
}

// PrimaryCalculator computes capital as bracket total times loss multiplier
type PrimaryCalculator struct {
	Multiplier *MultiplierCalculator
}

// NewPrimaryCalculator creates a primary calculator with the default gate rules
func NewPrimaryCalculator() *PrimaryCalculator {
	return &PrimaryCalculator{Multiplier: NewMultiplierCalculator()}
}

// Calculate runs the primary method on already fetched inputs
func (pc *PrimaryCalculator) Calculate(p *params.Snapshot, periods []domain.IndicatorPeriod, losses []domain.LossRecord, w LossWindow) (*PrimaryResult, error) {
	indicator, err := AggregateIndicators(periods, p.AveragingYears)
	if err != nil {
		return nil, err
	}
	agg, err := AggregateLosses(losses, w)
	if err != nil {
		return nil, err
	}
	return pc.Compute(p, indicator, agg), nil
}

// Compute applies brackets and the multiplier to aggregated inputs
func (pc *PrimaryCalculator) Compute(p *params.Snapshot, indicator IndicatorAggregate, losses LossAggregate) *PrimaryResult {
	brackets := ApplyBrackets(indicator.Average, p.Brackets)
	mult := pc.Multiplier.Calculate(MultiplierInput{
		Bucket:            brackets.Bucket,
		YearsWithData:     losses.YearsWithData,
		MinDataYears:      p.MinLossDataYears,
		PolicyOverride:    p.PolicyOverride,
		AverageAnnualLoss: losses.AverageAnnualLoss,
		BracketTotal:      brackets.Total,
	})

	capital := brackets.Total.Mul(mult.Value).Round(2)
	return &PrimaryResult{
		Indicator:     indicator,
		Brackets:      brackets,
		Losses:        losses,
		Multiplier:    mult,
		LossComponent: p.LossComponentMultiplier.Mul(losses.AverageAnnualLoss),
		Capital:       capital,
		RWA:           capital.Mul(p.LeverageConstant).Round(2),
	}
}

// Intermediates flattens the result into the string map kept in lineage
func (r *PrimaryResult) Intermediates() map[string]string {
	m := map[string]string{
		"indicator_average":       r.Indicator.Average.String(),
		"indicator_current_total": r.Indicator.CurrentTotal.String(),
		"indicator_periods_used":  strconv.Itoa(r.Indicator.PeriodsUsed),
		"bracket_total":           r.Brackets.Total.String(),
		"bucket":                  strconv.Itoa(r.Brackets.Bucket),
		"average_annual_loss":     r.Losses.AverageAnnualLoss.String(),
		"loss_component":          r.LossComponent.String(),
		"years_with_data":         strconv.Itoa(r.Losses.YearsWithData),
		"loss_ratio":              r.Multiplier.Ratio.String(),
		"loss_multiplier":         r.Multiplier.Value.String(),
		"gate_state":              string(r.Multiplier.State),
		"gate_reason":             r.Multiplier.Reason,
	}
	for i, c := range r.Brackets.Contributions {
		m["bucket_"+strconv.Itoa(i+1)+"_contribution"] = c.String()
	}
	for year, total := range r.Losses.AnnualTotals {
		m["annual_loss_"+strconv.Itoa(year)] = total.String()
	}
	if r.Indicator.InsufficientHistory {
		m["indicator_insufficient_history"] = "true"
	}
	return m
}

// Anomalies lists the non-fatal findings of the run
func (r *PrimaryResult) Anomalies() []string {
	var out []string
	if r.Indicator.InsufficientHistory {
		out = append(out, "indicator history shorter than averaging window: "+
			strconv.Itoa(r.Indicator.PeriodsUsed)+" of "+strconv.Itoa(r.Indicator.PeriodsRequested)+" periods")
	}
	for _, id := range r.Losses.RejectedExclusionIDs {
		out = append(out, "exclusion of "+id+" has no valid approval reference; loss included")
	}
	if r.Multiplier.Anomaly != "" {
		out = append(out, r.Multiplier.Anomaly)
	}
	return out
}
