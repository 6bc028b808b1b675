package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/domain"
)

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(filepath.Join("testdata", "dataset.yaml"))
	require.NoError(t, err)

	require.Len(t, ds.IndicatorPeriods, 3)
	assert.True(t, d("55000").Equal(ds.IndicatorPeriods[2].Total()))
	assert.True(t, ds.IndicatorPeriods[2].AsOfDate.Equal(asOf))

	require.Len(t, ds.LossRecords, 2)
	assert.True(t, d("1500").Equal(ds.LossRecords[0].NetAmount()))
	assert.True(t, ds.LossRecords[1].Excluded)
	assert.Equal(t, "CRO-2023-007", ds.LossRecords[1].ExclusionApprovalRef)

	require.Len(t, ds.SegmentIncome, 2)
	assert.True(t, d("-200").Equal(ds.SegmentIncome[1].GrossIncome))
	require.NoError(t, ds.Validate())
}

func TestLoadDataset_Errors(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "store: read dataset")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("indicator_periods: [unclosed"), 0o600))
	_, err = LoadDataset(bad)
	assert.ErrorContains(t, err, "store: parse dataset")
}

func TestDataset_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ds    Dataset
		field string
	}{
		{
			name:  "period without label",
			ds:    Dataset{IndicatorPeriods: []domain.IndicatorPeriod{func() domain.IndicatorPeriod { p := period("x", 2025, "1"); p.PeriodLabel = ""; return p }()}},
			field: "period_label",
		},
		{
			name:  "loss without event id",
			ds:    Dataset{LossRecords: []domain.LossRecord{lossRecord("", asOf, "1")}},
			field: "event_id",
		},
		{
			name:  "income without segment",
			ds:    Dataset{SegmentIncome: []domain.SegmentIncome{{ID: "s1", EntityID: "BANK-001", PeriodLabel: "FY2025", AsOfDate: asOf}}},
			field: "segment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.Validate()
			var derr *domain.DomainComputationError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.field, derr.Field)
		})
	}
}

func TestMemoryData_MatchesSQLite(t *testing.T) {
	ds, err := LoadDataset(filepath.Join("testdata", "dataset.yaml"))
	require.NoError(t, err)

	mem, err := NewMemoryData(ds)
	require.NoError(t, err)
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Ingest(ctx, ds, "loader"))

	memPeriods, err := mem.FetchIndicatorPeriods(ctx, "BANK-001", asOf, 2)
	require.NoError(t, err)
	sqlPeriods, err := st.FetchIndicatorPeriods(ctx, "BANK-001", asOf, 2)
	require.NoError(t, err)
	require.Len(t, memPeriods, 2)
	require.Len(t, sqlPeriods, 2)
	for i := range memPeriods {
		assert.Equal(t, memPeriods[i].ID, sqlPeriods[i].ID)
		assert.True(t, memPeriods[i].Total().Equal(sqlPeriods[i].Total()))
	}

	memLosses, err := mem.FetchLossRecords(ctx, "BANK-001", asOf, 10)
	require.NoError(t, err)
	sqlLosses, err := st.FetchLossRecords(ctx, "BANK-001", asOf, 10)
	require.NoError(t, err)
	require.Len(t, memLosses, 2)
	require.Len(t, sqlLosses, 2)
	for i := range memLosses {
		assert.Equal(t, memLosses[i].EventID, sqlLosses[i].EventID)
		assert.Equal(t, memLosses[i].Excluded, sqlLosses[i].Excluded)
	}

	memIncome, err := mem.FetchSegmentIncome(ctx, "BANK-001", asOf, 3)
	require.NoError(t, err)
	sqlIncome, err := st.FetchSegmentIncome(ctx, "BANK-001", asOf, 3)
	require.NoError(t, err)
	require.Len(t, memIncome, 2)
	require.Len(t, sqlIncome, 2)
	assert.Equal(t, memIncome[0].ID, sqlIncome[0].ID)
	assert.Equal(t, memIncome[1].ID, sqlIncome[1].ID)
}

func TestMemoryData_ServesLaterVersionsOutsideWindow(t *testing.T) {
	original := lossRecord("L1", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), "1000")
	moved := lossRecord("L1-v2", time.Date(2013, 6, 30, 0, 0, 0, 0, time.UTC), "1000")
	moved.SupersedesEventID = "L1"
	excluded := moved
	excluded.EventID = "L1-v3"
	excluded.SupersedesEventID = "L1-v2"
	excluded.Excluded = true
	excluded.ExclusionApprovalRef = "CRO-2025-001"
	stale := lossRecord("L0", time.Date(2012, 1, 31, 0, 0, 0, 0, time.UTC), "50")

	mem, err := NewMemoryData(&Dataset{LossRecords: []domain.LossRecord{excluded, stale, moved, original}})
	require.NoError(t, err)
	got, err := mem.FetchLossRecords(context.Background(), "BANK-001", asOf, 10)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.EventID
	}
	assert.Equal(t, []string{"L1", "L1-v2", "L1-v3"}, ids)
}

func TestMemoryData_CopiesInput(t *testing.T) {
	ds := &Dataset{IndicatorPeriods: []domain.IndicatorPeriod{period("FY2025", 2025, "10")}}
	mem, err := NewMemoryData(ds)
	require.NoError(t, err)

	ds.IndicatorPeriods[0].InterestComponent = d("999")
	got, err := mem.FetchIndicatorPeriods(context.Background(), "BANK-001", asOf, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, d("10").Equal(got[0].InterestComponent))
}

func TestMemoryData_RejectsInvalid(t *testing.T) {
	_, err := NewMemoryData(&Dataset{LossRecords: []domain.LossRecord{lossRecord("", asOf, "1")}})
	assert.Error(t, err)
}
