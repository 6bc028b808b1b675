package calculation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// IndicatorAggregate is the averaged business indicator
type IndicatorAggregate struct {
	Average             decimal.Decimal
	CurrentTotal        decimal.Decimal
	PeriodsUsed         int
	PeriodsRequested    int
	InsufficientHistory bool
	PeriodIDs           []string
	Totals              []decimal.Decimal
}

// AggregateIndicators averages the totals of the most recent periods.
// Fewer periods than requested are averaged as-is and flagged.
func AggregateIndicators(periods []domain.IndicatorPeriod, years int) (IndicatorAggregate, error) {
	if len(periods) == 0 {
		return IndicatorAggregate{}, &domain.InsufficientDataError{
			Field:  "indicator_periods",
			Need:   1,
			Detail: "no business indicator periods",
		}
	}
	if years < 1 {
		years = 1
	}

	seen := make(map[string]bool, len(periods))
	for _, p := range periods {
		if seen[p.PeriodLabel] {
			return IndicatorAggregate{}, &domain.DomainComputationError{
				EntityID: p.EntityID,
				Field:    "period_label",
				Detail:   "duplicate indicator period " + p.PeriodLabel,
			}
		}
		seen[p.PeriodLabel] = true
	}

	ordered := sortPeriods(periods)
	start := 0
	if len(ordered) > years {
		start = len(ordered) - years
	}
	recent := ordered[start:]

	agg := IndicatorAggregate{
		PeriodsUsed:         len(recent),
		PeriodsRequested:    years,
		InsufficientHistory: len(recent) < years,
	}
	sum := decimal.Zero
	for _, p := range recent {
		total := p.Total()
		sum = sum.Add(total)
		agg.Totals = append(agg.Totals, total)
		agg.PeriodIDs = append(agg.PeriodIDs, p.ID)
	}
	agg.Average = sum.Div(decimal.NewFromInt(int64(len(recent))))
	agg.CurrentTotal = agg.Totals[len(agg.Totals)-1]
	return agg, nil
}

// sortPeriods returns a copy ordered oldest first
func sortPeriods(periods []domain.IndicatorPeriod) []domain.IndicatorPeriod {
	out := append([]domain.IndicatorPeriod(nil), periods...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AsOfDate.Equal(out[j].AsOfDate) {
			return out[i].AsOfDate.Before(out[j].AsOfDate)
		}
		return out[i].PeriodLabel < out[j].PeriodLabel
	})
	return out
}
