package group

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

var asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

type stubMappings []domain.ConsolidationMapping

func (s stubMappings) FetchConsolidationMappings(_ context.Context, parentID string, at time.Time) ([]domain.ConsolidationMapping, error) {
	var out []domain.ConsolidationMapping
	for _, m := range s {
		if m.ParentEntityID == parentID && m.InEffect(at) {
			out = append(out, m)
		}
	}
	return out, nil
}

// stubEngine returns a fixed capital per entity with a leverage of 12.5
type stubEngine struct {
	mu      sync.Mutex
	capital map[string]string
	calls   []string
	fail    string
}

func (s *stubEngine) Calculate(_ context.Context, req calculation.Request) (*domain.CalculationResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req.EntityID)
	s.mu.Unlock()
	if req.EntityID == s.fail {
		return nil, &domain.InsufficientDataError{EntityID: req.EntityID, Method: req.Method, Field: "indicator_periods"}
	}
	c := decimal.RequireFromString(s.capital[req.EntityID])
	return &domain.CalculationResult{
		RunID:              "run-" + req.EntityID,
		EntityID:           req.EntityID,
		Method:             req.Method,
		CapitalRequirement: c,
		RiskWeightedAssets: c.Mul(decimal.RequireFromString("12.5")),
		GateState:          domain.GateComputed,
	}, nil
}

func mapping(id, parent, child, pct string, method domain.ConsolidationMethod) domain.ConsolidationMapping {
	return domain.ConsolidationMapping{
		ID:             id,
		ParentEntityID: parent,
		ChildEntityID:  child,
		OwnershipPct:   decimal.RequireFromString(pct),
		Method:         method,
		EffectiveFrom:  asOf.AddDate(-2, 0, 0),
	}
}

func request(entity string) calculation.Request {
	return calculation.Request{EntityID: entity, AsOf: asOf, Method: domain.MethodPrimary, InitiatedBy: "analyst"}
}

func TestConsolidate_WeightsSubsidiaries(t *testing.T) {
	engine := &stubEngine{capital: map[string]string{
		"HOLD": "1000", "BANK-A": "400", "BANK-B": "300", "BANK-B1": "100", "INS-C": "900",
	}}
	mappings := stubMappings{
		mapping("m1", "HOLD", "BANK-A", "100", domain.ConsolidateFull),
		mapping("m2", "HOLD", "BANK-B", "60", domain.ConsolidateProportional),
		mapping("m3", "BANK-B", "BANK-B1", "50", domain.ConsolidateProportional),
		mapping("m4", "HOLD", "INS-C", "20", domain.ConsolidateEquity),
	}
	m := metrics.New(prometheus.NewRegistry())
	c := NewConsolidator(engine, mappings)
	c.Metrics = m

	res, err := c.Consolidate(context.Background(), request("HOLD"))
	require.NoError(t, err)

	// 1000 + 400 + 0.6*300 + 0.3*100
	assert.Equal(t, "1610.00", res.TotalCapital.StringFixed(2))
	assert.Equal(t, "20125", res.TotalRWA.String())
	require.Len(t, res.Members, 4)
	assert.Equal(t, "HOLD", res.Members[0].EntityID)
	b1 := res.Members[3]
	assert.Equal(t, "BANK-B1", b1.EntityID)
	assert.Equal(t, "BANK-B", b1.ParentEntityID)
	assert.Equal(t, 2, b1.Depth)
	assert.Equal(t, "0.3", b1.Weight.String())
	assert.Equal(t, "30", b1.Contribution.String())
	assert.ElementsMatch(t, []string{"run-HOLD", "run-BANK-A", "run-BANK-B", "run-BANK-B1"}, res.RunIDs)

	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "INS-C", res.Excluded[0].EntityID)
	assert.NotContains(t, engine.calls, "INS-C", "equity holdings are not calculated")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consolidations.WithLabelValues("ok")))
}

func TestConsolidate_OnlyMappingsInEffect(t *testing.T) {
	engine := &stubEngine{capital: map[string]string{"HOLD": "1000", "BANK-A": "400", "BANK-N": "50"}}
	ended := mapping("m1", "HOLD", "BANK-A", "100", domain.ConsolidateFull)
	until := asOf
	ended.EffectiveTo = &until
	future := mapping("m2", "HOLD", "BANK-N", "100", domain.ConsolidateFull)
	future.EffectiveFrom = asOf.AddDate(0, 0, 1)

	res, err := NewConsolidator(engine, stubMappings{ended, future}).Consolidate(context.Background(), request("HOLD"))
	require.NoError(t, err)
	assert.Len(t, res.Members, 1)
	assert.Equal(t, "1000", res.TotalCapital.String())
}

func TestConsolidate_RejectsEntitiesReachedTwice(t *testing.T) {
	engine := &stubEngine{capital: map[string]string{"HOLD": "1", "A": "1", "B": "1"}}
	for name, mappings := range map[string]stubMappings{
		"cycle": {
			mapping("m1", "HOLD", "A", "100", domain.ConsolidateFull),
			mapping("m2", "A", "HOLD", "100", domain.ConsolidateFull),
		},
		"shared child": {
			mapping("m1", "HOLD", "A", "100", domain.ConsolidateFull),
			mapping("m2", "HOLD", "B", "100", domain.ConsolidateFull),
			mapping("m3", "B", "A", "100", domain.ConsolidateFull),
		},
	} {
		t.Run(name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			c := NewConsolidator(engine, mappings)
			c.Metrics = m
			_, err := c.Consolidate(context.Background(), request("HOLD"))
			var de *domain.DomainComputationError
			require.True(t, errors.As(err, &de))
			assert.Contains(t, de.Detail, "reached twice")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Consolidations.WithLabelValues("failed")))
		})
	}
}

func TestConsolidate_MemberFailureFailsGroup(t *testing.T) {
	engine := &stubEngine{capital: map[string]string{"HOLD": "1000"}, fail: "BANK-A"}
	mappings := stubMappings{mapping("m1", "HOLD", "BANK-A", "100", domain.ConsolidateFull)}

	_, err := NewConsolidator(engine, mappings).Consolidate(context.Background(), request("HOLD"))
	var ie *domain.InsufficientDataError
	assert.True(t, errors.As(err, &ie))
	assert.ErrorContains(t, err, "group: calculate BANK-A")
}

func TestConsolidate_DepthIsBounded(t *testing.T) {
	capital := map[string]string{"E0": "1"}
	var mappings stubMappings
	for i := 0; i <= MaxDepth; i++ {
		parent, child := entity(i), entity(i+1)
		capital[child] = "1"
		mappings = append(mappings, mapping("m"+child, parent, child, "100", domain.ConsolidateFull))
	}
	_, err := NewConsolidator(&stubEngine{capital: capital}, mappings).Consolidate(context.Background(), request("E0"))
	var de *domain.DomainComputationError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Detail, "deeper than")
}

func entity(i int) string { return "E" + string(rune('0'+i)) }
