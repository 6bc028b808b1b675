package params

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// ApplyOverrides returns a copy of set with the named parameters replaced.
// The result is validated as a whole; one bad override rejects them all.
func ApplyOverrides(set *domain.ParameterSet, overrides map[string]string) (*domain.ParameterSet, error) {
	out := set.Clone()
	if len(overrides) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	var v violations
	for _, name := range names {
		raw := strings.TrimSpace(overrides[name])
		spec, ok := specFor(out.ModelName, name)
		if !ok {
			v.add(name, "unknown parameter for model %s", out.ModelName)
			continue
		}
		p := domain.Parameter{Name: name, Kind: spec.kind}
		if spec.kind == domain.KindBoolean {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				v.add(name, "override %q is not a boolean", raw)
				continue
			}
			p.Flag = b
		} else {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				v.add(name, "override %q is not a number", raw)
				continue
			}
			p.Value = d
		}
		replace(out, p)
	}

	v = append(v, Validate(out)...)
	if len(v) > 0 {
		return nil, &domain.ValidationError{Model: out.ModelName, VersionID: out.VersionID, Violations: v}
	}
	return out, nil
}

func replace(set *domain.ParameterSet, p domain.Parameter) {
	for i := range set.Parameters {
		if set.Parameters[i].Name == p.Name {
			set.Parameters[i] = p
			return
		}
	}
	set.Parameters = append(set.Parameters, p)
}
