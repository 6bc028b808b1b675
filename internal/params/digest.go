package params

import (
	"github.com/rgehrsitz/opcap/internal/canonical"
	"github.com/rgehrsitz/opcap/internal/domain"
)

// Digest hashes the content of a parameter set: model, version, effective
// date and the ordered parameter values. Governance metadata is excluded.
func Digest(set *domain.ParameterSet) (string, error) {
	return canonical.Hash(canonical.DomainParameters, map[string]any{
		"model":          string(set.ModelName),
		"version_id":     set.VersionID,
		"effective_date": set.EffectiveDate,
		"parameters":     Document(set.Parameters),
	})
}

// Document converts parameters to their canonical form, keeping list order
func Document(ps []domain.Parameter) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		doc := map[string]any{"name": p.Name, "kind": string(p.Kind)}
		if p.Kind == domain.KindBoolean {
			doc["flag"] = p.Flag
		} else {
			doc["value"] = p.Value
		}
		out[i] = doc
	}
	return out
}
