package compare

import (
	"encoding/csv"
	"strings"
)

// CSVFormatter formats comparison results as CSV
type CSVFormatter struct{}

// Format generates CSV output for comparison results
func (cf *CSVFormatter) Format(compSet *ComparisonSet) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	header := []string{
		"Method",
		"Type",
		"Capital",
		"RWA",
		"Gate State",
		"Capital Diff from Base",
		"Capital % Change",
		"RWA Diff from Base",
		"Run ID",
		"Error",
	}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	if err := writer.Write(cf.formatRow(compSet.BaseResult, "base")); err != nil {
		return "", err
	}
	for _, alt := range compSet.AlternativeResults {
		if err := writer.Write(cf.formatRow(&alt, "alternative")); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// formatRow formats a comparison result as a CSV row
func (cf *CSVFormatter) formatRow(result *ComparisonResult, rowType string) []string {
	if !result.Available() {
		return []string{string(result.Method), rowType, "", "", "", "", "", "", "", result.Error}
	}
	return []string{
		string(result.Method),
		rowType,
		result.Capital.StringFixed(2),
		result.RWA.StringFixed(2),
		string(result.GateState),
		result.CapitalDiffFromBase.StringFixed(2),
		result.CapitalPctFromBase.StringFixed(2),
		result.RWADiffFromBase.StringFixed(2),
		result.RunID,
		"",
	}
}
