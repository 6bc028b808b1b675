package calculation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// LossWindow selects and filters loss history
type LossWindow struct {
	AsOf         time.Time
	Years        int
	MinThreshold decimal.Decimal
	// ApprovalCheck decides whether an exclusion's approval reference is
	// acceptable. Nil uses domain.ValidApprovalRef.
	ApprovalCheck func(ref string) bool
}

// Start returns the exclusive start of the window
func (w LossWindow) Start() time.Time {
	return w.AsOf.AddDate(-w.Years, 0, 0)
}

// yearIndex places a date in one of the window's years, counted back from
// the as-of date: 0 is (AsOf-1y, AsOf], 1 is (AsOf-2y, AsOf-1y] and so on.
// It returns -1 outside the window.
func (w LossWindow) yearIndex(t time.Time) int {
	if t.After(w.AsOf) || !t.After(w.Start()) {
		return -1
	}
	// the calendar-year distance is at most two below the answer
	k := max(w.AsOf.Year()-t.Year()-1, 0)
	for !t.After(w.AsOf.AddDate(-(k + 1), 0, 0)) {
		k++
	}
	return k
}

// LossAggregate is the filtered, averaged loss history
type LossAggregate struct {
	AverageAnnualLoss decimal.Decimal
	TotalNetLoss      decimal.Decimal
	// YearsWithData counts window years with at least one in-window record,
	// before threshold and exclusion filtering
	YearsWithData int
	// AnnualTotals is keyed by the calendar year in which each window year ends
	AnnualTotals         map[int]decimal.Decimal
	IncludedIDs          []string
	ExcludedIDs          []string
	BelowThresholdIDs    []string
	RejectedExclusionIDs []string
	SupersededIDs        []string
	OutOfWindowIDs       []string
}

// AggregateLosses computes the average annual net loss over the window.
// Superseded versions are dropped first, then out-of-window records. The
// remaining records fix the number of years with data. Records below the
// threshold and approved exclusions are then dropped, and the sum of what
// is left is divided by the years with data.
func AggregateLosses(records []domain.LossRecord, w LossWindow) (LossAggregate, error) {
	check := w.ApprovalCheck
	if check == nil {
		check = domain.ValidApprovalRef
	}
	agg := LossAggregate{
		AverageAnnualLoss: decimal.Zero,
		TotalNetLoss:      decimal.Zero,
		AnnualTotals:      make(map[int]decimal.Decimal),
	}

	superseded := make(map[string]bool)
	for _, r := range records {
		if r.SupersedesEventID != "" {
			superseded[r.SupersedesEventID] = true
		}
	}

	years := make(map[int]bool)
	for _, r := range records {
		if err := r.ValidateAmounts(); err != nil {
			return LossAggregate{}, err
		}
		if superseded[r.EventID] {
			agg.SupersededIDs = append(agg.SupersededIDs, r.EventID)
			continue
		}
		k := w.yearIndex(r.AccountingDate)
		if k < 0 {
			agg.OutOfWindowIDs = append(agg.OutOfWindowIDs, r.EventID)
			continue
		}
		years[k] = true

		net := r.NetAmount()
		if net.LessThan(w.MinThreshold) {
			agg.BelowThresholdIDs = append(agg.BelowThresholdIDs, r.EventID)
			continue
		}
		if r.Excluded {
			if check(r.ExclusionApprovalRef) {
				agg.ExcludedIDs = append(agg.ExcludedIDs, r.EventID)
				continue
			}
			agg.RejectedExclusionIDs = append(agg.RejectedExclusionIDs, r.EventID)
		}

		yearEnd := w.AsOf.AddDate(-k, 0, 0).Year()
		agg.AnnualTotals[yearEnd] = agg.AnnualTotals[yearEnd].Add(net)
		agg.TotalNetLoss = agg.TotalNetLoss.Add(net)
		agg.IncludedIDs = append(agg.IncludedIDs, r.EventID)
	}

	// every in-window year counts, even if all its records were filtered
	for k := range years {
		yearEnd := w.AsOf.AddDate(-k, 0, 0).Year()
		if _, ok := agg.AnnualTotals[yearEnd]; !ok {
			agg.AnnualTotals[yearEnd] = decimal.Zero
		}
	}
	agg.YearsWithData = len(years)
	if agg.YearsWithData > 0 {
		agg.AverageAnnualLoss = agg.TotalNetLoss.Div(decimal.NewFromInt(int64(agg.YearsWithData)))
	}

	for _, ids := range [][]string{agg.IncludedIDs, agg.ExcludedIDs, agg.BelowThresholdIDs,
		agg.RejectedExclusionIDs, agg.SupersededIDs, agg.OutOfWindowIDs} {
		sort.Strings(ids)
	}
	return agg, nil
}
