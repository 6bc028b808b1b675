package compare

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
)

type fakeCalc struct {
	mu       sync.Mutex
	capital  map[domain.Method]string
	failures map[domain.Method]error
	seen     []calculation.Request
}

func (f *fakeCalc) Calculate(_ context.Context, req calculation.Request) (*domain.CalculationResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if err := f.failures[req.Method]; err != nil {
		return nil, err
	}
	capital := decimal.RequireFromString(f.capital[req.Method])
	gate := domain.GateNotApplicable
	if req.Method == domain.MethodPrimary {
		gate = domain.GateComputed
	}
	return &domain.CalculationResult{
		RunID:              "run-" + string(req.Method),
		EntityID:           req.EntityID,
		Method:             req.Method,
		AsOfDate:           req.AsOf,
		CapitalRequirement: capital,
		RiskWeightedAssets: capital.Mul(decimal.RequireFromString("12.5")),
		GateState:          gate,
	}, nil
}

var asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func TestCompare_AllMethods(t *testing.T) {
	calc := &fakeCalc{capital: map[domain.Method]string{
		domain.MethodPrimary:   "4754.36",
		domain.MethodFlat:      "7500",
		domain.MethodSegmented: "4000",
	}}

	set, err := NewCompareEngine(calc).Compare(context.Background(), CompareOptions{
		EntityID:    "BANK-001",
		AsOf:        asOf,
		Overrides:   map[string]string{"min_loss_data_years": "3"},
		InitiatedBy: "analyst",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MethodPrimary, set.BaseMethod)
	assert.Equal(t, "run-primary", set.BaseResult.RunID)
	require.Len(t, set.AlternativeResults, 2)

	flat := set.AlternativeResults[0]
	assert.Equal(t, domain.MethodFlat, flat.Method)
	assert.Equal(t, "2745.64", flat.CapitalDiffFromBase.StringFixed(2))
	assert.Equal(t, "57.75", flat.CapitalPctFromBase.StringFixed(2))
	assert.Equal(t, "34320.50", flat.RWADiffFromBase.StringFixed(2))

	seg := set.AlternativeResults[1]
	assert.True(t, seg.CapitalDiffFromBase.IsNegative())

	require.Len(t, set.Observations, 2)
	assert.Contains(t, set.Observations[0], "Highest requirement: flat")
	assert.Contains(t, set.Observations[1], "Lowest requirement: segmented")

	require.Len(t, calc.seen, 3)
	for _, req := range calc.seen {
		if req.Method == domain.MethodPrimary {
			assert.Equal(t, "3", req.Overrides["min_loss_data_years"])
		} else {
			assert.Nil(t, req.Overrides)
		}
		assert.Equal(t, "analyst", req.InitiatedBy)
	}
}

func TestCompare_AlternativeFailureIsReported(t *testing.T) {
	calc := &fakeCalc{
		capital:  map[domain.Method]string{domain.MethodPrimary: "100", domain.MethodFlat: "150"},
		failures: map[domain.Method]error{domain.MethodSegmented: errors.New("no segment income")},
	}

	set, err := NewCompareEngine(calc).Compare(context.Background(), CompareOptions{EntityID: "BANK-001", AsOf: asOf})
	require.NoError(t, err)
	require.Len(t, set.AlternativeResults, 2)

	seg := set.AlternativeResults[1]
	assert.False(t, seg.Available())
	assert.Equal(t, "no segment income", seg.Error)
	assert.True(t, seg.CapitalDiffFromBase.IsZero())
	assert.Contains(t, set.Observations, "Unavailable: segmented could not be calculated (no segment income)")
}

func TestCompare_BaseFailureFails(t *testing.T) {
	calc := &fakeCalc{
		capital:  map[domain.Method]string{domain.MethodFlat: "150", domain.MethodSegmented: "120"},
		failures: map[domain.Method]error{domain.MethodPrimary: domain.ErrNoActiveVersion},
	}
	_, err := NewCompareEngine(calc).Compare(context.Background(), CompareOptions{EntityID: "BANK-001", AsOf: asOf})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoActiveVersion))
	assert.Contains(t, err.Error(), "compare: base method primary")
}

func TestCompare_ExplicitMethods(t *testing.T) {
	calc := &fakeCalc{capital: map[domain.Method]string{domain.MethodFlat: "150", domain.MethodSegmented: "120"}}
	set, err := NewCompareEngine(calc).Compare(context.Background(), CompareOptions{
		EntityID:   "BANK-001",
		AsOf:       asOf,
		BaseMethod: domain.MethodFlat,
		Methods:    []domain.Method{domain.MethodSegmented},
	})
	require.NoError(t, err)
	require.Len(t, set.AlternativeResults, 1)
	assert.Equal(t, "-20.00", set.AlternativeResults[0].CapitalPctFromBase.StringFixed(2))
	assert.Len(t, calc.seen, 2)
}

func TestCalculateComparison_ZeroBase(t *testing.T) {
	base := ComparisonResult{Method: domain.MethodPrimary, Capital: decimal.Zero}
	alt := ComparisonResult{Method: domain.MethodFlat, Capital: decimal.NewFromInt(10)}
	got := CalculateComparison(alt, base)
	assert.True(t, got.CapitalDiffFromBase.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.CapitalPctFromBase.IsZero())
}

func TestGenerateObservations_GatedBase(t *testing.T) {
	set := &ComparisonSet{
		BaseResult:         &ComparisonResult{Method: domain.MethodPrimary, Capital: decimal.NewFromInt(600), GateState: domain.GateBucketFloor},
		AlternativeResults: []ComparisonResult{{Method: domain.MethodFlat, Capital: decimal.NewFromInt(600)}},
	}
	assert.Equal(t, []string{"Base method loss multiplier gated: gated_bucket_floor"}, GenerateObservations(set))

	assert.Empty(t, GenerateObservations(&ComparisonSet{BaseResult: set.BaseResult}))
}
