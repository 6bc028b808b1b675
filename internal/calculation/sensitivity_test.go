package calculation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/params"
)

func flatRequest() Request {
	req := primaryRequest()
	req.Method = domain.MethodFlat
	return req
}

func TestSweepValues(t *testing.T) {
	values, err := sweepValues(SensitivityParameter{Name: "x", Min: d("0.1"), Max: d("0.2"), Steps: 3})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "0.1", values[0].String())
	assert.Equal(t, "0.15", values[1].String())
	assert.Equal(t, "0.2", values[2].String())

	values, err = sweepValues(SensitivityParameter{Name: "x", Min: d("1"), Max: d("2"), Steps: 3})
	require.NoError(t, err)
	assert.Equal(t, "2", values[2].String(), "the last value is exactly max")

	values, err = sweepValues(SensitivityParameter{Name: "x", Min: d("7"), Max: d("9"), Steps: 1})
	require.NoError(t, err)
	assert.Equal(t, []decimal.Decimal{d("7")}, values)

	for name, p := range map[string]SensitivityParameter{
		"no name":        {Min: d("1"), Max: d("2"), Steps: 2},
		"no steps":       {Name: "x", Min: d("1"), Max: d("2")},
		"too many steps": {Name: "x", Min: d("1"), Max: d("2"), Steps: MaxSensitivitySteps + 1},
		"inverted":       {Name: "x", Min: d("2"), Max: d("1"), Steps: 2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := sweepValues(p)
			var ve *domain.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestSensitivity_Analyze(t *testing.T) {
	f := newFixture(t)
	sa := NewSensitivityAnalyzer(f.engine)

	res, err := sa.Analyze(context.Background(), flatRequest(), SensitivityParameter{
		Name: params.FlatCoefficient, Min: d("0.5"), Max: d("1.5"), Steps: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.15", res.BaseValue.String())
	assert.Equal(t, "7500", res.BaseCapital.String())
	assert.NotEmpty(t, res.BaseRunID)
	require.Len(t, res.Points, 3)

	assert.Equal(t, "25000", res.Points[0].Capital.String())
	assert.Equal(t, "17500", res.Points[0].Change.String())
	assert.Equal(t, "1.00", res.Points[0].Elasticity.StringFixed(2))
	assert.NotEmpty(t, res.Points[0].RunID)
	assert.Equal(t, "50000", res.Points[1].Capital.String())

	assert.Contains(t, res.Points[2].Rejected, "must be between 0 and 1")
	assert.Empty(t, res.Points[2].RunID)

	assert.Equal(t, "1.00", res.MaxElasticity.StringFixed(2))
	require.NotNil(t, res.MostSensitive)
	assert.Contains(t, []string{"high", "moderate"}, res.Assessment)

	// every computed point is a verifiable run
	v, err := f.engine.VerifyIntegrity(context.Background(), res.Points[1].RunID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	run, err := f.engine.GetLineage(context.Background(), res.Points[1].RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{params.FlatCoefficient: "1"}, run.Overrides)
}

func TestSensitivity_InsensitiveParameter(t *testing.T) {
	f := newFixture(t)
	res, err := NewSensitivityAnalyzer(f.engine).Analyze(context.Background(), flatRequest(), SensitivityParameter{
		Name: params.LeverageConstant, Min: d("10"), Max: d("15"), Steps: 2,
	})
	require.NoError(t, err)
	for _, p := range res.Points {
		assert.Equal(t, "7500", p.Capital.String())
		assert.True(t, p.Elasticity.IsZero())
	}
	assert.Nil(t, res.MostSensitive)
	assert.Equal(t, "low", res.Assessment)
}

func TestSensitivity_UnknownParameter(t *testing.T) {
	f := newFixture(t)
	_, err := NewSensitivityAnalyzer(f.engine).Analyze(context.Background(), flatRequest(), SensitivityParameter{
		Name: params.LossWindowYears, Min: d("5"), Max: d("10"), Steps: 2,
	})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "is not a parameter of the resolved set")
}

func TestSensitivity_SweepsCalculatedCapitalUnderOverride(t *testing.T) {
	f := newFixture(t)
	value := d("1")
	f.engine.Supervisor = stubOverrides{domain.MethodFlat: {
		ID: "SO-1", EntityID: "BANK-001", Method: domain.MethodFlat, CapitalValue: &value,
		Reason: domain.ReasonOther, EffectiveFrom: asOf, Status: domain.OverrideApproved, ApprovalRef: "REF-1",
	}}
	res, err := NewSensitivityAnalyzer(f.engine).Analyze(context.Background(), flatRequest(), SensitivityParameter{
		Name: params.FlatCoefficient, Min: d("0.3"), Max: d("0.3"), Steps: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "7500", res.BaseCapital.String())
	assert.Equal(t, "15000", res.Points[0].Capital.String())
}

func TestSensitivity_AnalyzeMatrix(t *testing.T) {
	f := newFixture(t)
	sa := NewSensitivityAnalyzer(f.engine)
	m, err := sa.AnalyzeMatrix(context.Background(), flatRequest(),
		SensitivityParameter{Name: params.FlatCoefficient, Min: d("0.1"), Max: d("0.2"), Steps: 2},
		SensitivityParameter{Name: params.FlatLookbackPeriods, Min: d("1"), Max: d("2"), Steps: 2},
	)
	require.NoError(t, err)
	require.Len(t, m.Capital, 2)
	require.Len(t, m.Capital[0], 2)
	// latest period 55000; latest two average 52500
	assert.Equal(t, "5500", m.Capital[0][0].String())
	assert.Equal(t, "5250", m.Capital[0][1].String())
	assert.Equal(t, "11000", m.Capital[1][0].String())
	assert.Equal(t, "10500", m.Capital[1][1].String())
	assert.Equal(t, "5250", m.Min.String())
	assert.Equal(t, "11000", m.Max.String())
	assert.Equal(t, "7500", m.BaseCapital.String())
	assert.Empty(t, m.Rejected)

	_, err = sa.AnalyzeMatrix(context.Background(), flatRequest(),
		SensitivityParameter{Name: params.FlatCoefficient, Min: d("0.1"), Max: d("0.2"), Steps: 2},
		SensitivityParameter{Name: params.FlatCoefficient, Min: d("0.1"), Max: d("0.2"), Steps: 2},
	)
	assert.Error(t, err)

	m, err = sa.AnalyzeMatrix(context.Background(), flatRequest(),
		SensitivityParameter{Name: params.FlatCoefficient, Min: d("0.1"), Max: d("0.2"), Steps: 2},
		SensitivityParameter{Name: params.FlatLookbackPeriods, Min: d("1"), Max: d("2"), Steps: 3},
	)
	require.NoError(t, err)
	assert.Len(t, m.Rejected, 2, "a lookback of 1.5 is rejected in both rows")
	assert.Nil(t, m.Capital[0][1])
}
