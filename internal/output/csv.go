package output

import (
	"bytes"
	"encoding/csv"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// CSVFormatter renders one key,value row per figure
type CSVFormatter struct{}

func (c CSVFormatter) Name() string { return "csv" }

func (c CSVFormatter) Format(res *domain.CalculationResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"key", "value"},
		{"run_id", res.RunID},
		{"entity_id", res.EntityID},
		{"method", string(res.Method)},
		{"as_of_date", res.AsOfDate.Format("2006-01-02")},
		{"capital_requirement", res.CapitalRequirement.StringFixed(2)},
		{"risk_weighted_assets", res.RiskWeightedAssets.StringFixed(2)},
	}
	for _, k := range sortedKeys(res.Intermediates) {
		rows = append(rows, []string{k, res.Intermediates[k]})
	}
	for _, ref := range res.ParameterRefs {
		rows = append(rows, []string{"parameter_version_" + string(ref.Model), ref.VersionID})
	}
	rows = append(rows, []string{"input_hash", res.InputHash}, []string{"output_hash", res.OutputHash})

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
