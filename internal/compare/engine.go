package compare

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/domain"
)

// Calculator runs a single capital calculation
type Calculator interface {
	Calculate(ctx context.Context, req calculation.Request) (*domain.CalculationResult, error)
}

// CompareEngine runs several methods for the same entity and date
type CompareEngine struct {
	Calc Calculator
}

// NewCompareEngine creates a new comparison engine
func NewCompareEngine(calc Calculator) *CompareEngine {
	return &CompareEngine{Calc: calc}
}

// CompareOptions configures comparison behavior
type CompareOptions struct {
	EntityID    string
	AsOf        time.Time
	BaseMethod  domain.Method   // method the others are measured against
	Methods     []domain.Method // alternatives; empty means every other method
	Overrides   map[string]string
	InitiatedBy string
}

// Compare calculates the base and every alternative concurrently. A failed
// base fails the comparison; a failed alternative is reported in its row.
func (ce *CompareEngine) Compare(ctx context.Context, opts CompareOptions) (*ComparisonSet, error) {
	if opts.BaseMethod == "" {
		opts.BaseMethod = domain.MethodPrimary
	}
	methods := opts.Methods
	if len(methods) == 0 {
		for _, m := range []domain.Method{domain.MethodPrimary, domain.MethodFlat, domain.MethodSegmented} {
			if m != opts.BaseMethod {
				methods = append(methods, m)
			}
		}
	}

	all := append([]domain.Method{opts.BaseMethod}, methods...)
	results := make([]*domain.CalculationResult, len(all))
	errs := make([]error, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, method := range all {
		i, method := i, method
		g.Go(func() error {
			results[i], errs[i] = ce.Calc.Calculate(gctx, calculation.Request{
				EntityID:    opts.EntityID,
				AsOf:        opts.AsOf,
				Method:      method,
				Overrides:   overridesFor(method, opts),
				InitiatedBy: opts.InitiatedBy,
			})
			return nil
		})
	}
	_ = g.Wait()

	if errs[0] != nil {
		return nil, eris.Wrapf(errs[0], "compare: base method %s", opts.BaseMethod)
	}
	base := FromResult(results[0])

	alternatives := make([]ComparisonResult, 0, len(methods))
	for i := 1; i < len(all); i++ {
		if errs[i] != nil {
			alternatives = append(alternatives, ComparisonResult{Method: all[i], Error: errs[i].Error()})
			continue
		}
		alternatives = append(alternatives, CalculateComparison(FromResult(results[i]), base))
	}

	set := &ComparisonSet{
		EntityID:           opts.EntityID,
		AsOf:               opts.AsOf,
		BaseMethod:         opts.BaseMethod,
		BaseResult:         &base,
		AlternativeResults: alternatives,
	}
	set.Observations = GenerateObservations(set)
	return set, nil
}

// overridesFor returns the overrides only for the base method; parameter
// names differ between models
func overridesFor(method domain.Method, opts CompareOptions) map[string]string {
	if method != opts.BaseMethod {
		return nil
	}
	return opts.Overrides
}
