package compare

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter renders a comparison set as JSON with amounts rounded to
// two places
type JSONFormatter struct {
	Pretty bool
}

// Format encodes a rounded copy of compSet; the set itself is not modified
func (jf *JSONFormatter) Format(compSet *ComparisonSet) (string, error) {
	out := *compSet
	if compSet.BaseResult != nil {
		base := rounded(*compSet.BaseResult)
		out.BaseResult = &base
	}
	out.AlternativeResults = make([]ComparisonResult, len(compSet.AlternativeResults))
	for i, alt := range compSet.AlternativeResults {
		out.AlternativeResults[i] = rounded(alt)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if jf.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(&out); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func rounded(r ComparisonResult) ComparisonResult {
	r.Capital = r.Capital.Round(2)
	r.RWA = r.RWA.Round(2)
	r.CapitalDiffFromBase = r.CapitalDiffFromBase.Round(2)
	r.RWADiffFromBase = r.RWADiffFromBase.Round(2)
	return r
}
