package params

import (
	"sort"
	"strconv"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Change is one parameter that differs between two versions.
// Before or After is empty when the parameter is absent on that side.
type Change struct {
	Name   string `json:"name"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Diff lists the parameters that differ from one version to the next
func Diff(from, to *domain.ParameterSet) []Change {
	before := values(from)
	after := values(to)

	names := make(map[string]bool, len(before)+len(after))
	for n := range before {
		names[n] = true
	}
	for n := range after {
		names[n] = true
	}

	var changes []Change
	for n := range names {
		if before[n] != after[n] {
			changes = append(changes, Change{Name: n, Before: before[n], After: after[n]})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}

func values(set *domain.ParameterSet) map[string]string {
	out := make(map[string]string)
	if set == nil {
		return out
	}
	for _, p := range set.Parameters {
		if p.Kind == domain.KindBoolean {
			out[p.Name] = strconv.FormatBool(p.Flag)
		} else {
			out[p.Name] = p.Value.String()
		}
	}
	return out
}
