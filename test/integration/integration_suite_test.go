package integration

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/lineage"
	"github.com/rgehrsitz/opcap/internal/params"
	"github.com/rgehrsitz/opcap/internal/store"
)

var asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

const entity = "BANK-001"

// testEnv is a fully wired engine over a throwaway SQLite database
type testEnv struct {
	ctx      context.Context
	store    *store.SQLiteStore
	registry *params.Registry
	engine   *calculation.Engine
}

// setupTestEnvironment opens a fresh database and wires the registry,
// recorder and engine the way the CLI does
func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "opcap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	reg := params.NewRegistry(params.WithRepository(st), params.WithLogger(logger))
	engine := calculation.NewEngine(reg, st, lineage.NewRecorder(st, lineage.WithLogger(logger)))
	engine.SetLogger(logger)

	return &testEnv{ctx: ctx, store: st, registry: reg, engine: engine}
}

// seedHistory loads three indicator periods, seven years of losses and one
// period of segment income
func (e *testEnv) seedHistory(t *testing.T) {
	t.Helper()
	var periods []domain.IndicatorPeriod
	for i, total := range []string{"45000", "50000", "55000"} {
		year := 2023 + i
		periods = append(periods, domain.IndicatorPeriod{
			ID:                 "bi-" + strconv.Itoa(year),
			EntityID:           entity,
			PeriodLabel:        "FY" + strconv.Itoa(year),
			InterestComponent:  decimal.RequireFromString(total),
			ServicesComponent:  decimal.Zero,
			FinancialComponent: decimal.Zero,
			AsOfDate:           time.Date(year, 3, 31, 0, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, e.store.AddIndicatorPeriods(e.ctx, periods...))

	for k := 0; k < 7; k++ {
		accounted := asOf.AddDate(-k, 0, -30)
		_, err := e.store.RecordLoss(e.ctx, domain.LossRecord{
			EventID:         "L" + strconv.Itoa(k),
			EntityID:        entity,
			OccurrenceDate:  accounted.AddDate(0, -1, 0),
			DiscoveryDate:   accounted.AddDate(0, 0, -10),
			AccountingDate:  accounted,
			GrossAmount:     decimal.NewFromInt(1500),
			RecoveredAmount: decimal.Zero,
			EventType:       "external_fraud",
		}, "ops-analyst")
		require.NoError(t, err)
	}

	require.NoError(t, e.store.AddSegmentIncome(e.ctx,
		domain.SegmentIncome{ID: "si-retail", EntityID: entity, PeriodLabel: "FY2025", Segment: "retail_banking",
			GrossIncome: decimal.NewFromInt(1000), AsOfDate: asOf},
		domain.SegmentIncome{ID: "si-commercial", EntityID: entity, PeriodLabel: "FY2025", Segment: "commercial_banking",
			GrossIncome: decimal.NewFromInt(2000), AsOfDate: asOf},
	))
}

// approveAndActivate takes a proposed set through maker, checker and approver
func (e *testEnv) approveAndActivate(t *testing.T, set domain.ParameterSet) *domain.ParameterSet {
	t.Helper()
	draft, err := e.registry.Propose(e.ctx, set, "maker")
	require.NoError(t, err)
	_, err = e.registry.Submit(e.ctx, draft.VersionID, "maker")
	require.NoError(t, err)
	_, err = e.registry.Review(e.ctx, draft.VersionID, "checker", "")
	require.NoError(t, err)
	_, err = e.registry.Approve(e.ctx, draft.VersionID, "approver", "")
	require.NoError(t, err)
	active, err := e.registry.Activate(e.ctx, draft.VersionID, "approver")
	require.NoError(t, err)
	return active
}

// activateDefaults activates the standard sets for every model, effective a
// year before asOf
func (e *testEnv) activateDefaults(t *testing.T) {
	t.Helper()
	effective := asOf.AddDate(-1, 0, 0)
	e.approveAndActivate(t, params.DefaultPrimary("sma-1", effective))
	e.approveAndActivate(t, params.DefaultFlat("bia-1", effective))
	e.approveAndActivate(t, params.DefaultSegmented("tsa-1", effective))
}

func (e *testEnv) request(method domain.Method) calculation.Request {
	return calculation.Request{EntityID: entity, AsOf: asOf, Method: method, InitiatedBy: "analyst"}
}
