package lineage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/canonical"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

var asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

func sampleRun() *domain.CalculationRun {
	return &domain.CalculationRun{
		EntityID: "BANK-001",
		Method:   domain.MethodPrimary,
		AsOfDate: asOf,
		ParameterRefs: []domain.ParameterRef{
			{Model: domain.ModelPrimary, VersionID: "sma-2025-04", ContentDigest: "d1"},
		},
		Overrides: map[string]string{"min_loss_data_years": "6"},
		Input: domain.InputSnapshot{
			IndicatorPeriods: []domain.IndicatorPeriod{
				{
					ID: "p2", EntityID: "BANK-001", PeriodLabel: "FY2024",
					InterestComponent:  decimal.NewFromInt(30000),
					ServicesComponent:  decimal.NewFromInt(15000),
					FinancialComponent: decimal.NewFromInt(5000),
					AsOfDate:           asOf,
				},
				{
					ID: "p1", EntityID: "BANK-001", PeriodLabel: "FY2023",
					InterestComponent:  decimal.NewFromInt(28000),
					ServicesComponent:  decimal.NewFromInt(14000),
					FinancialComponent: decimal.NewFromInt(4000),
					AsOfDate:           asOf.AddDate(-1, 0, 0),
				},
			},
			LossRecords: []domain.LossRecord{
				{
					EventID:         "L1",
					EntityID:        "BANK-001",
					AccountingDate:  time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
					GrossAmount:     decimal.RequireFromString("12.5"),
					RecoveredAmount: decimal.RequireFromString("2.5"),
					EventType:       "fraud",
					RecordedAt:      time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC),
				},
			},
			Parameters: []domain.Parameter{
				{Name: "bi_averaging_years", Kind: domain.KindNumeric, Value: decimal.NewFromInt(3)},
				{Name: "loss_multiplier_policy_override", Kind: domain.KindBoolean},
			},
			IncludedLossIDs: []string{"L1"},
		},
		Intermediates: map[string]string{"bracket_total": "7260", "bucket": "2"},
		Outputs: domain.Outputs{
			CapitalRequirement: decimal.RequireFromString("4754.36"),
			RiskWeightedAssets: decimal.RequireFromString("59429.5"),
		},
		Anomalies:   []string{"loss ratio is not positive; loss multiplier set to 1"},
		InitiatedBy: "analyst",
	}
}

func TestInputDocument_Golden(t *testing.T) {
	data, err := canonical.Marshal(InputDocument(sampleRun()))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "input_document", data)
}

func TestInputHash_IndependentOfInputOrder(t *testing.T) {
	a := sampleRun()
	b := sampleRun()
	p := b.Input.IndicatorPeriods
	p[0], p[1] = p[1], p[0]

	ha, err := InputHash(a)
	require.NoError(t, err)
	hb, err := InputHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestInputHash_ExcludesRunIdentity(t *testing.T) {
	a := sampleRun()
	b := sampleRun()
	b.RunID = "other"
	b.CreatedAt = time.Now()
	b.InitiatedBy = "someone else"

	ha, _ := InputHash(a)
	hb, _ := InputHash(b)
	assert.Equal(t, ha, hb)

	b.Overrides["min_loss_data_years"] = "7"
	hc, _ := InputHash(b)
	assert.NotEqual(t, ha, hc, "overrides are part of the input")
}

func TestOutputHash_CoversSupervisorOverride(t *testing.T) {
	plain := sampleRun()
	withOverride := sampleRun()
	withOverride.SupervisorOverride = &domain.AppliedOverride{
		OverrideID:        "SO-2025-001",
		Reason:            domain.ReasonConservativeAdjustment,
		ApprovedBy:        "cro",
		ApprovalRef:       "BOARD-2025-07",
		CalculatedCapital: decimal.RequireFromString("4754.36"),
		OverrideCapital:   decimal.RequireFromString("5000"),
	}

	h1, err := OutputHash(plain)
	require.NoError(t, err)
	h2, err := OutputHash(withOverride)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	withOverride.SupervisorOverride.ApprovalRef = "BOARD-2025-08"
	h3, err := OutputHash(withOverride)
	require.NoError(t, err)
	assert.NotEqual(t, h2, h3, "the approval reference is part of the output")

	_, present := OutputDocument(plain)["supervisor_override"]
	assert.False(t, present)
}

func TestRecorder_RecordAndVerify(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rec := NewRecorder(NewMemoryStore(),
		WithMetrics(m),
		WithClock(func() time.Time { return asOf }),
	)

	run := sampleRun()
	id, err := rec.Record(ctx, run)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, run.RunID)
	assert.Equal(t, asOf, run.CreatedAt)
	assert.Len(t, run.InputHash, 64)
	assert.Len(t, run.OutputHash, 64)

	v, err := rec.Verify(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, run.InputHash, v.InputHash.Recomputed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntegrityChecks.WithLabelValues("ok")))
}

func TestRecorder_RecordKeepsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(NewMemoryStore())

	run := sampleRun()
	id, err := rec.Record(ctx, run)
	require.NoError(t, err)

	run.Input.LossRecords[0].GrossAmount = decimal.NewFromInt(999)
	run.Intermediates["bucket"] = "3"

	stored, err := rec.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "12.5", stored.Input.LossRecords[0].GrossAmount.String())
	assert.Equal(t, "2", stored.Intermediates["bucket"])

	v, err := rec.Verify(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestRecorder_VerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CalculationRun)
		want   []string
	}{
		{
			name:   "input",
			mutate: func(r *domain.CalculationRun) { r.Input.LossRecords[0].RecoveredAmount = decimal.Zero },
			want:   []string{"input_hash"},
		},
		{
			name:   "output",
			mutate: func(r *domain.CalculationRun) { r.Outputs.CapitalRequirement = decimal.NewFromInt(1) },
			want:   []string{"output_hash"},
		},
		{
			name: "supervisor override approval",
			mutate: func(r *domain.CalculationRun) {
				r.SupervisorOverride = &domain.AppliedOverride{OverrideID: "SO-1", ApprovalRef: "forged"}
			},
			want: []string{"output_hash"},
		},
		{
			name: "both",
			mutate: func(r *domain.CalculationRun) {
				r.Overrides = nil
				r.Anomalies = nil
			},
			want: []string{"input_hash", "output_hash"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			rec := NewRecorder(store, WithMetrics(m))

			id, err := rec.Record(ctx, sampleRun())
			require.NoError(t, err)
			tt.mutate(store.runs[id])

			v, err := rec.Verify(ctx, id)
			require.Error(t, err)
			require.NotNil(t, v)
			assert.False(t, v.Valid)

			var ierr *domain.IntegrityError
			require.True(t, errors.As(err, &ierr))
			var names []string
			for _, mm := range ierr.Mismatches {
				names = append(names, mm.Name)
				assert.NotEqual(t, mm.Stored, mm.Recomputed)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.IntegrityChecks.WithLabelValues("mismatch")))
		})
	}
}

func TestRecorder_VerifyUnknownRun(t *testing.T) {
	rec := NewRecorder(NewMemoryStore())
	_, err := rec.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecorder_ConcurrentRecordsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := NewRecorder(store)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := rec.Record(ctx, sampleRun())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
	runs, err := rec.List(ctx, "BANK-001")
	require.NoError(t, err)
	assert.Len(t, runs, n)
}

func TestMemoryStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	run := sampleRun()
	run.RunID = "r1"
	require.NoError(t, store.Append(ctx, run))
	assert.ErrorContains(t, store.Append(ctx, run), "already recorded")

	other := sampleRun()
	other.RunID = "r2"
	other.EntityID = "BANK-002"
	require.NoError(t, store.Append(ctx, other))

	runs, err := store.List(ctx, "BANK-002")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].RunID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.Get(ctx, "r3")
	assert.True(t, errors.Is(err, domain.ErrNotFound), fmt.Sprint(err))
}
