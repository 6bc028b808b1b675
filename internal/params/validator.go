package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

type violations []domain.Violation

func (v *violations) add(field, format string, args ...any) {
	*v = append(*v, domain.Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a candidate parameter set and returns every violation.
// An empty result means the set is valid; there is no partial validity.
func Validate(set *domain.ParameterSet) []domain.Violation {
	var v violations
	if set == nil {
		v.add("parameter_set", "is required")
		return v
	}
	if !set.ModelName.Valid() {
		v.add("model", "unknown model %q", set.ModelName)
		return v
	}
	if strings.TrimSpace(set.VersionID) == "" {
		v.add("version_id", "is required")
	}
	if set.EffectiveDate.IsZero() {
		v.add("effective_date", "is required")
	}

	seen := make(map[string]bool, len(set.Parameters))
	for _, p := range set.Parameters {
		if seen[p.Name] {
			v.add(p.Name, "duplicate parameter")
			continue
		}
		seen[p.Name] = true

		spec, ok := specFor(set.ModelName, p.Name)
		if !ok {
			v.add(p.Name, "unknown parameter for model %s", set.ModelName)
			continue
		}
		if p.Kind != spec.kind {
			v.add(p.Name, "must be %s, got %q", spec.kind, p.Kind)
			continue
		}
		if spec.integer {
			switch {
			case !p.Value.IsInteger() || !p.Value.IsPositive():
				v.add(p.Name, "must be a positive integer, got %s", p.Value)
			case p.Value.GreaterThan(decimal.NewFromInt(spec.max)):
				v.add(p.Name, "must not exceed %d, got %s", spec.max, p.Value)
			}
		}
	}

	switch set.ModelName {
	case domain.ModelPrimary:
		validateBrackets(set, &v)
		nonNegative(set, MinLossThreshold, &v)
		nonNegative(set, LossComponentMultiplier, &v)
		window, okWindow := set.Lookup(LossWindowYears)
		minYears, okMin := set.Lookup(MinLossDataYears)
		windowYears := decimal.NewFromInt(DefaultLossWindowYears)
		if okWindow {
			windowYears = window.Value
		}
		if okMin && minYears.Value.GreaterThan(windowYears) {
			v.add(MinLossDataYears, "must not exceed %s (%s)", LossWindowYears, windowYears)
		}
	case domain.ModelFlat:
		if _, ok := set.Lookup(FlatCoefficient); !ok {
			v.add(FlatCoefficient, "is required")
		}
		unitInterval(set, FlatCoefficient, &v)
	case domain.ModelSegmented:
		segments := 0
		for _, p := range set.Parameters {
			if _, ok := segmentPart(p.Name); ok {
				segments++
				unitInterval(set, p.Name, &v)
			}
		}
		if segments == 0 {
			v.add("segment", "at least one segment coefficient is required")
		}
	}
	if p, ok := set.Lookup(LeverageConstant); ok && !p.Value.IsPositive() {
		v.add(LeverageConstant, "must be greater than zero, got %s", p.Value)
	}
	return v
}

func validateBrackets(set *domain.ParameterSet, v *violations) {
	thresholds := make(map[int]decimal.Decimal)
	coefficients := make(map[int]decimal.Decimal)
	count := 0
	for _, p := range set.Parameters {
		i, field, ok := bracketPart(p.Name)
		if !ok {
			continue
		}
		if field == "threshold" {
			thresholds[i] = p.Value
		} else {
			coefficients[i] = p.Value
		}
		if i > count {
			count = i
		}
	}
	if count == 0 {
		v.add(BracketCoefficient(1), "at least one bracket is required")
		return
	}

	for i := 1; i <= count; i++ {
		c, ok := coefficients[i]
		switch {
		case !ok:
			v.add(BracketCoefficient(i), "is required")
		case c.IsNegative():
			v.add(BracketCoefficient(i), "must not be negative, got %s", c)
		}
	}

	// the last bracket is open-ended, so only bounded brackets need a threshold
	indices := make([]int, 0, len(thresholds))
	for i := 1; i < count; i++ {
		t, ok := thresholds[i]
		if !ok {
			v.add(BracketThreshold(i), "is required for a bounded bracket")
			continue
		}
		if !t.IsPositive() {
			v.add(BracketThreshold(i), "must be greater than zero, got %s", t)
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for k := 1; k < len(indices); k++ {
		prev, cur := indices[k-1], indices[k]
		if !thresholds[cur].GreaterThan(thresholds[prev]) {
			v.add(BracketThreshold(cur), "must be greater than %s (%s <= %s)",
				BracketThreshold(prev), thresholds[cur], thresholds[prev])
		}
	}
}

func nonNegative(set *domain.ParameterSet, name string, v *violations) {
	if p, ok := set.Lookup(name); ok && p.Value.IsNegative() {
		v.add(name, "must not be negative, got %s", p.Value)
	}
}

func unitInterval(set *domain.ParameterSet, name string, v *violations) {
	p, ok := set.Lookup(name)
	if !ok {
		return
	}
	if p.Value.IsNegative() || p.Value.GreaterThan(decimal.NewFromInt(1)) {
		v.add(name, "must be between 0 and 1, got %s", p.Value)
	}
}

// Check returns a *domain.ValidationError listing every violation, or nil
func Check(set *domain.ParameterSet) error {
	found := Validate(set)
	if len(found) == 0 {
		return nil
	}
	err := &domain.ValidationError{Violations: found}
	if set != nil {
		err.Model = set.ModelName
		err.VersionID = set.VersionID
	}
	return err
}
