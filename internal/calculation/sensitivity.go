package calculation

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// MaxSensitivitySteps bounds the points of one sweep
const MaxSensitivitySteps = 25

// Elasticity bands for the sweep assessment
var (
	highElasticity     = decimal.NewFromInt(1)
	moderateElasticity = decimal.RequireFromString("0.5")
	hundred            = decimal.NewFromInt(100)
)

// SensitivityParameter is one parameter swept over Steps evenly spaced
// values from Min to Max
type SensitivityParameter struct {
	Name  string          `json:"name" yaml:"name"`
	Min   decimal.Decimal `json:"min" yaml:"min"`
	Max   decimal.Decimal `json:"max" yaml:"max"`
	Steps int             `json:"steps" yaml:"steps"`
}

// SensitivityPoint is the outcome at one swept value. Rejected holds the
// validation failure when the value is not a legal parameter value.
type SensitivityPoint struct {
	Value      decimal.Decimal  `json:"value"`
	RunID      string           `json:"run_id,omitempty"`
	Capital    decimal.Decimal  `json:"capital_requirement"`
	GateState  domain.GateState `json:"gate_state,omitempty"`
	Change     decimal.Decimal  `json:"change"`
	ChangePct  decimal.Decimal  `json:"change_pct"`
	Elasticity decimal.Decimal  `json:"elasticity"`
	Rejected   string           `json:"rejected,omitempty"`
}

// SensitivityAnalysis is a one-parameter sweep around a base calculation.
// Capital is the calculated figure before any supervisor override.
type SensitivityAnalysis struct {
	Parameter     SensitivityParameter `json:"parameter"`
	BaseValue     decimal.Decimal      `json:"base_value"`
	BaseRunID     string               `json:"base_run_id"`
	BaseCapital   decimal.Decimal      `json:"base_capital"`
	Points        []SensitivityPoint   `json:"points"`
	MaxElasticity decimal.Decimal      `json:"max_elasticity"`
	MostSensitive *decimal.Decimal     `json:"most_sensitive_value,omitempty"`
	Assessment    string               `json:"assessment"`
}

// SensitivityMatrix is a two-parameter sweep. Capital[i][j] pairs the i-th
// value of the first parameter with the j-th of the second; rejected cells
// hold nil.
type SensitivityMatrix struct {
	First        SensitivityParameter `json:"first"`
	Second       SensitivityParameter `json:"second"`
	FirstValues  []decimal.Decimal    `json:"first_values"`
	SecondValues []decimal.Decimal    `json:"second_values"`
	Capital      [][]*decimal.Decimal `json:"capital"`
	Min          *decimal.Decimal     `json:"min_capital,omitempty"`
	Max          *decimal.Decimal     `json:"max_capital,omitempty"`
	BaseCapital  decimal.Decimal      `json:"base_capital"`
	Rejected     map[string]string    `json:"rejected,omitempty"`
}

// SensitivityAnalyzer sweeps parameters through the engine. Every point is
// a recorded run.
type SensitivityAnalyzer struct {
	engine *Engine
}

// NewSensitivityAnalyzer creates an analyzer over e
func NewSensitivityAnalyzer(e *Engine) *SensitivityAnalyzer {
	return &SensitivityAnalyzer{engine: e}
}

// Analyze runs req once as the base and once per swept value of p
func (sa *SensitivityAnalyzer) Analyze(ctx context.Context, req Request, p SensitivityParameter) (*SensitivityAnalysis, error) {
	values, err := sweepValues(p)
	if err != nil {
		return nil, err
	}
	base, baseValue, err := sa.base(ctx, req, p.Name)
	if err != nil {
		return nil, err
	}
	baseCapital := calculatedCapital(base)

	reqs := make([]Request, len(values))
	for i, v := range values {
		reqs[i] = withOverride(req, p.Name, v)
	}
	results := sa.engine.CalculateBatch(ctx, reqs)

	out := &SensitivityAnalysis{
		Parameter:     p,
		BaseValue:     baseValue,
		BaseRunID:     base.RunID,
		BaseCapital:   baseCapital,
		MaxElasticity: decimal.Zero,
	}
	for i, r := range results {
		point := SensitivityPoint{Value: values[i]}
		if reason, err := rejection(r.Err); err != nil {
			return nil, err
		} else if reason != "" {
			point.Rejected = reason
			out.Points = append(out.Points, point)
			continue
		}
		point.RunID = r.Result.RunID
		point.Capital = calculatedCapital(r.Result)
		point.GateState = r.Result.GateState
		point.Change = point.Capital.Sub(baseCapital)
		if !baseCapital.IsZero() {
			point.ChangePct = point.Change.Div(baseCapital).Mul(hundred).Round(4)
			if !baseValue.IsZero() && !values[i].Equal(baseValue) {
				paramPct := values[i].Sub(baseValue).Div(baseValue).Mul(hundred)
				point.Elasticity = point.ChangePct.Div(paramPct).Round(4)
			}
		}
		if point.Elasticity.Abs().GreaterThan(out.MaxElasticity) {
			out.MaxElasticity = point.Elasticity.Abs()
			v := values[i]
			out.MostSensitive = &v
		}
		out.Points = append(out.Points, point)
	}
	out.Assessment = assess(out.MaxElasticity)

	sa.engine.Logger.Info("sensitivity sweep complete",
		zap.String("entity_id", req.EntityID),
		zap.String("parameter", p.Name),
		zap.Int("points", len(out.Points)),
		zap.String("max_elasticity", out.MaxElasticity.String()),
		zap.String("assessment", out.Assessment))
	return out, nil
}

// AnalyzeMatrix sweeps two parameters over every pair of their values
func (sa *SensitivityAnalyzer) AnalyzeMatrix(ctx context.Context, req Request, first, second SensitivityParameter) (*SensitivityMatrix, error) {
	if first.Name == second.Name {
		return nil, sweepError(second.Name, "a matrix needs two different parameters")
	}
	xs, err := sweepValues(first)
	if err != nil {
		return nil, err
	}
	ys, err := sweepValues(second)
	if err != nil {
		return nil, err
	}
	base, _, err := sa.base(ctx, req, first.Name, second.Name)
	if err != nil {
		return nil, err
	}

	reqs := make([]Request, 0, len(xs)*len(ys))
	for _, x := range xs {
		for _, y := range ys {
			reqs = append(reqs, withOverride(withOverride(req, first.Name, x), second.Name, y))
		}
	}
	results := sa.engine.CalculateBatch(ctx, reqs)

	out := &SensitivityMatrix{
		First:        first,
		Second:       second,
		FirstValues:  xs,
		SecondValues: ys,
		Capital:      make([][]*decimal.Decimal, len(xs)),
		BaseCapital:  calculatedCapital(base),
	}
	for i := range xs {
		out.Capital[i] = make([]*decimal.Decimal, len(ys))
		for j := range ys {
			r := results[i*len(ys)+j]
			reason, err := rejection(r.Err)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				if out.Rejected == nil {
					out.Rejected = make(map[string]string)
				}
				out.Rejected[fmt.Sprintf("%s=%s,%s=%s", first.Name, xs[i], second.Name, ys[j])] = reason
				continue
			}
			c := calculatedCapital(r.Result)
			out.Capital[i][j] = &c
			if out.Min == nil || c.LessThan(*out.Min) {
				out.Min = &c
			}
			if out.Max == nil || c.GreaterThan(*out.Max) {
				out.Max = &c
			}
		}
	}
	return out, nil
}

// base runs the unmodified request and reads the effective value of the
// first name from its recorded inputs. Every name must be in the set.
func (sa *SensitivityAnalyzer) base(ctx context.Context, req Request, names ...string) (*domain.CalculationResult, decimal.Decimal, error) {
	res, err := sa.engine.Calculate(ctx, req)
	if err != nil {
		return nil, decimal.Zero, err
	}
	run, err := sa.engine.GetLineage(ctx, res.RunID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	set := domain.ParameterSet{Parameters: run.Input.Parameters}
	var value decimal.Decimal
	for i, name := range names {
		p, ok := set.Lookup(name)
		if !ok {
			return nil, decimal.Zero, sweepError(name, "is not a parameter of the resolved set")
		}
		if i == 0 {
			value = p.Value
		}
	}
	return res, value, nil
}

func sweepValues(p SensitivityParameter) ([]decimal.Decimal, error) {
	switch {
	case p.Name == "":
		return nil, sweepError("parameter", "a parameter name is required")
	case p.Steps < 1 || p.Steps > MaxSensitivitySteps:
		return nil, sweepError(p.Name, fmt.Sprintf("steps must be between 1 and %d, got %d", MaxSensitivitySteps, p.Steps))
	case p.Max.LessThan(p.Min):
		return nil, sweepError(p.Name, fmt.Sprintf("max %s is below min %s", p.Max, p.Min))
	}
	if p.Steps == 1 {
		return []decimal.Decimal{p.Min}, nil
	}
	step := p.Max.Sub(p.Min).Div(decimal.NewFromInt(int64(p.Steps - 1)))
	values := make([]decimal.Decimal, 0, p.Steps)
	for i := 0; i < p.Steps; i++ {
		values = append(values, p.Min.Add(step.Mul(decimal.NewFromInt(int64(i)))))
	}
	values[len(values)-1] = p.Max
	return values, nil
}

func withOverride(req Request, name string, v decimal.Decimal) Request {
	overrides := make(map[string]string, len(req.Overrides)+1)
	for k, val := range req.Overrides {
		overrides[k] = val
	}
	overrides[name] = v.String()
	req.Overrides = overrides
	return req
}

// rejection turns a validation failure into a point-level reason; any other
// error aborts the sweep
func rejection(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error(), nil
	}
	return "", err
}

func calculatedCapital(res *domain.CalculationResult) decimal.Decimal {
	if res.SupervisorOverride != nil {
		return res.SupervisorOverride.CalculatedCapital
	}
	return res.CapitalRequirement
}

func assess(maxElasticity decimal.Decimal) string {
	switch {
	case maxElasticity.GreaterThan(highElasticity):
		return "high"
	case maxElasticity.GreaterThan(moderateElasticity):
		return "moderate"
	}
	return "low"
}

func sweepError(field, msg string) error {
	return &domain.ValidationError{
		Subject:    "sensitivity sweep",
		Violations: []domain.Violation{{Field: field, Message: msg}},
	}
}
