package calculation

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/params"
)

// LegacyResult is the outcome of the flat or segmented method
type LegacyResult struct {
	Method domain.Method
	// PeriodLabels are the periods considered, oldest first
	PeriodLabels []string
	// PeriodCharges is the per-period figure that was averaged: the positive
	// indicator total for flat, the floored segment charge for segmented
	PeriodCharges map[string]decimal.Decimal
	Skipped       []string
	PeriodsUsed   int
	Average       decimal.Decimal
	Coefficient   decimal.Decimal
	Capital       decimal.Decimal
	RWA           decimal.Decimal
}

// Intermediates flattens the result into the string map kept in lineage
func (r *LegacyResult) Intermediates() map[string]string {
	m := map[string]string{
		"periods_considered": strconv.Itoa(len(r.PeriodLabels)),
		"periods_used":       strconv.Itoa(r.PeriodsUsed),
		"gate_state":         string(domain.GateNotApplicable),
	}
	if r.Method == domain.MethodFlat {
		m["positive_indicator_average"] = r.Average.String()
		m["flat_coefficient"] = r.Coefficient.String()
	} else {
		m["average_segment_charge"] = r.Average.String()
	}
	for label, v := range r.PeriodCharges {
		m["period_"+label] = v.String()
	}
	return m
}

// Anomalies lists the non-fatal findings of the run
func (r *LegacyResult) Anomalies() []string {
	var out []string
	for _, label := range r.Skipped {
		if r.Method == domain.MethodFlat {
			out = append(out, "period "+label+" has a non-positive indicator and is left out")
		} else {
			out = append(out, "period "+label+" segment charge floored at zero")
		}
	}
	return out
}

// FlatCalculator applies a single coefficient to the average positive indicator
type FlatCalculator struct{}

// Calculate averages the positive totals of the last lookback periods.
// Periods with a zero or negative total drop out of numerator and denominator.
func (FlatCalculator) Calculate(p *params.Snapshot, periods []domain.IndicatorPeriod) (*LegacyResult, error) {
	if len(periods) == 0 {
		return nil, &domain.InsufficientDataError{
			Method: domain.MethodFlat,
			Field:  "indicator_periods",
			Need:   1,
			Detail: "no business indicator periods",
		}
	}
	ordered := sortPeriods(periods)
	if n := p.FlatLookback; n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}

	result := &LegacyResult{
		Method:        domain.MethodFlat,
		PeriodCharges: make(map[string]decimal.Decimal),
		Coefficient:   p.FlatCoefficient,
	}
	sum := decimal.Zero
	for _, period := range ordered {
		result.PeriodLabels = append(result.PeriodLabels, period.PeriodLabel)
		total := period.Total()
		if !total.IsPositive() {
			result.Skipped = append(result.Skipped, period.PeriodLabel)
			continue
		}
		result.PeriodCharges[period.PeriodLabel] = total
		sum = sum.Add(total)
		result.PeriodsUsed++
	}
	if result.PeriodsUsed == 0 {
		return nil, &domain.InsufficientDataError{
			Method: domain.MethodFlat,
			Field:  "indicator_periods",
			Have:   0,
			Need:   1,
			Detail: "no period with a positive business indicator",
		}
	}

	result.Average = sum.Div(decimal.NewFromInt(int64(result.PeriodsUsed)))
	result.Capital = result.Average.Mul(p.FlatCoefficient).Round(2)
	result.RWA = result.Capital.Mul(p.LeverageConstant).Round(2)
	return result, nil
}

// SegmentedCalculator applies a coefficient per business segment
type SegmentedCalculator struct{}

// Calculate charges each period as the coefficient-weighted sum over its
// segments, floors each period at zero and averages the periods. Negative
// segments offset positive ones only within the same period.
func (SegmentedCalculator) Calculate(p *params.Snapshot, income []domain.SegmentIncome) (*LegacyResult, error) {
	if len(income) == 0 {
		return nil, &domain.InsufficientDataError{
			Method: domain.MethodSegmented,
			Field:  "segment_income",
			Need:   1,
			Detail: "no segment income",
		}
	}

	type period struct {
		label  string
		asOf   time.Time
		charge decimal.Decimal
	}
	byLabel := make(map[string]*period)
	for _, row := range income {
		coefficient, ok := p.SegmentCoefficients[row.Segment]
		if !ok {
			return nil, &domain.DomainComputationError{
				EntityID: row.EntityID,
				Method:   domain.MethodSegmented,
				Field:    "segment",
				Detail:   "no coefficient for segment " + row.Segment,
			}
		}
		pr, ok := byLabel[row.PeriodLabel]
		if !ok {
			pr = &period{label: row.PeriodLabel, charge: decimal.Zero}
			byLabel[row.PeriodLabel] = pr
		}
		if row.AsOfDate.After(pr.asOf) {
			pr.asOf = row.AsOfDate
		}
		pr.charge = pr.charge.Add(row.GrossIncome.Mul(coefficient))
	}

	ordered := make([]*period, 0, len(byLabel))
	for _, pr := range byLabel {
		ordered = append(ordered, pr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].asOf.Equal(ordered[j].asOf) {
			return ordered[i].asOf.Before(ordered[j].asOf)
		}
		return ordered[i].label < ordered[j].label
	})
	if n := p.SegmentedLookback; n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}

	result := &LegacyResult{
		Method:        domain.MethodSegmented,
		PeriodCharges: make(map[string]decimal.Decimal, len(ordered)),
		PeriodsUsed:   len(ordered),
	}
	sum := decimal.Zero
	for _, pr := range ordered {
		charge := pr.charge
		if charge.IsNegative() {
			charge = decimal.Zero
			result.Skipped = append(result.Skipped, pr.label)
		}
		result.PeriodLabels = append(result.PeriodLabels, pr.label)
		result.PeriodCharges[pr.label] = charge
		sum = sum.Add(charge)
	}

	result.Average = sum.Div(decimal.NewFromInt(int64(len(ordered))))
	result.Capital = result.Average.Round(2)
	result.RWA = result.Capital.Mul(p.LeverageConstant).Round(2)
	return result, nil
}
