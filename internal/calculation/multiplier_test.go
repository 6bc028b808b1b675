package calculation

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rgehrsitz/opcap/internal/domain"
)

func computable() MultiplierInput {
	return MultiplierInput{
		Bucket:            2,
		YearsWithData:     7,
		MinDataYears:      5,
		AverageAnnualLoss: d("1500"),
		BracketTotal:      d("7260"),
	}
}

func TestMultiplier_EachGateAlone(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MultiplierInput)
		state  domain.GateState
	}{
		{"computed", func(*MultiplierInput) {}, domain.GateComputed},
		{"bucket floor", func(in *MultiplierInput) { in.Bucket = 1 }, domain.GateBucketFloor},
		{"insufficient data", func(in *MultiplierInput) { in.YearsWithData = 4 }, domain.GateInsufficientData},
		{"policy override", func(in *MultiplierInput) { in.PolicyOverride = true }, domain.GateByPolicyOverride},
	}
	mc := NewMultiplierCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := computable()
			tt.mutate(&in)
			r := mc.Calculate(in)
			assert.Equal(t, tt.state, r.State)
			assert.NotEmpty(t, r.Reason)
			if tt.state != domain.GateComputed {
				assert.True(t, r.Value.Equal(decimal.NewFromInt(1)))
				assert.True(t, r.Ratio.IsZero())
			}
		})
	}
}

func TestMultiplier_GatePrecedence(t *testing.T) {
	mc := NewMultiplierCalculator()

	all := computable()
	all.Bucket = 1
	all.YearsWithData = 0
	all.PolicyOverride = true
	assert.Equal(t, domain.GateBucketFloor, mc.Calculate(all).State)

	dataAndPolicy := computable()
	dataAndPolicy.YearsWithData = 2
	dataAndPolicy.PolicyOverride = true
	r := mc.Calculate(dataAndPolicy)
	assert.Equal(t, domain.GateInsufficientData, r.State)
	assert.Equal(t, "2 years of loss data, 5 required", r.Reason)

	bucketAndData := computable()
	bucketAndData.Bucket = 1
	bucketAndData.YearsWithData = 2
	assert.Equal(t, domain.GateBucketFloor, mc.Calculate(bucketAndData).State)
}

func TestMultiplier_ExactlyMinimumYearsComputes(t *testing.T) {
	in := computable()
	in.YearsWithData = 5
	assert.Equal(t, domain.GateComputed, NewMultiplierCalculator().Calculate(in).State)
}

func TestMultiplier_NonPositiveInputsAreAnomalies(t *testing.T) {
	mc := NewMultiplierCalculator()

	zeroLoss := computable()
	zeroLoss.AverageAnnualLoss = decimal.Zero
	r := mc.Calculate(zeroLoss)
	assert.Equal(t, domain.GateComputed, r.State)
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1)))
	assert.NotEmpty(t, r.Anomaly)

	zeroTotal := computable()
	zeroTotal.BracketTotal = decimal.Zero
	r = mc.Calculate(zeroTotal)
	assert.Equal(t, domain.GateComputed, r.State)
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1)))
	assert.Contains(t, r.Anomaly, "bracket total")
}

func TestMultiplier_Scenario2(t *testing.T) {
	r := NewMultiplierCalculator().Calculate(computable())
	assert.Equal(t, domain.GateComputed, r.State)
	assert.Empty(t, r.Anomaly)
	assert.InDelta(t, 1500.0/7260.0, r.Ratio.InexactFloat64(), 1e-12)
	assert.InDelta(t, 0.6548705889, r.Value.InexactFloat64(), 1e-10)
}

func TestMultiplier_CustomRules(t *testing.T) {
	mc := &MultiplierCalculator{Rules: []GateRule{{
		State:   domain.GateByPolicyOverride,
		Applies: func(MultiplierInput) bool { return true },
		Reason:  func(MultiplierInput) string { return "always" },
	}}}
	in := computable()
	in.Bucket = 1
	r := mc.Calculate(in)
	assert.Equal(t, domain.GateByPolicyOverride, r.State)
	assert.Equal(t, "always", r.Reason)
}

func TestLossMultiplier(t *testing.T) {
	tests := []struct {
		ratio string
		want  float64
	}{
		{"1", 1},
		{"0.5", math.Log(math.E - 0.5)},
		{"2", math.Log(math.E + 1)},
	}
	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			got := LossMultiplier(d(tt.ratio))
			assert.InDelta(t, tt.want, got.InexactFloat64(), 1e-10)
		})
	}

	assert.True(t, LossMultiplier(d("0.1")).LessThan(LossMultiplier(d("0.2"))))
}
