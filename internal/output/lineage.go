package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/lineage"
)

// FormatRun renders a stored lineage record for the console
func FormatRun(run *domain.CalculationRun) []byte {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, titleStyle.Render("CALCULATION RUN "+run.RunID))
	fmt.Fprintf(&buf, "Entity:        %s\n", run.EntityID)
	fmt.Fprintf(&buf, "Method:        %s\n", run.Method)
	fmt.Fprintf(&buf, "As of:         %s\n", run.AsOfDate.Format("2006-01-02"))
	fmt.Fprintf(&buf, "Initiated by:  %s\n", run.InitiatedBy)
	fmt.Fprintf(&buf, "Recorded at:   %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintln(&buf, sectionStyle.Render("OUTPUTS"))
	fmt.Fprintf(&buf, "  capital_requirement   %s\n", FormatAmount(run.Outputs.CapitalRequirement))
	fmt.Fprintf(&buf, "  risk_weighted_assets  %s\n", FormatAmount(run.Outputs.RiskWeightedAssets))

	fmt.Fprintln(&buf, sectionStyle.Render("PARAMETERS"))
	for _, ref := range run.ParameterRefs {
		fmt.Fprintf(&buf, "  %-10s %s  %s\n", ref.Model, ref.VersionID, subtitleStyle.Render(short(ref.ContentDigest)))
	}
	for _, k := range sortedKeys(run.Overrides) {
		fmt.Fprintf(&buf, "  override %s = %s\n", k, run.Overrides[k])
	}

	fmt.Fprintln(&buf, sectionStyle.Render("INPUTS"))
	fmt.Fprintf(&buf, "  indicator periods  %d\n", len(run.Input.IndicatorPeriods))
	fmt.Fprintf(&buf, "  loss records       %d (%d included)\n", len(run.Input.LossRecords), len(run.Input.IncludedLossIDs))
	fmt.Fprintf(&buf, "  segment income     %d\n", len(run.Input.SegmentIncome))

	if len(run.Anomalies) > 0 {
		fmt.Fprintln(&buf, sectionStyle.Render("ANOMALIES"))
		for _, a := range run.Anomalies {
			fmt.Fprintf(&buf, "  %s %s\n", warningStyle.Render("!"), a)
		}
	}

	fmt.Fprintln(&buf, sectionStyle.Render("HASHES"))
	fmt.Fprintf(&buf, "  input   %s\n", run.InputHash)
	fmt.Fprintf(&buf, "  output  %s\n", run.OutputHash)
	return buf.Bytes()
}

// FormatRunList renders one line per run
func FormatRunList(runs []*domain.CalculationRun) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%-36s  %-12s  %-10s  %-10s  %18s\n", "RUN", "ENTITY", "METHOD", "AS OF", "CAPITAL")
	fmt.Fprintln(&buf, strings.Repeat("-", 94))
	for _, run := range runs {
		fmt.Fprintf(&buf, "%-36s  %-12s  %-10s  %-10s  %18s\n",
			run.RunID, run.EntityID, run.Method, run.AsOfDate.Format("2006-01-02"),
			FormatAmount(run.Outputs.CapitalRequirement))
	}
	return buf.Bytes()
}

// FormatVerification renders an integrity check
func FormatVerification(v *lineage.Verification) []byte {
	var buf bytes.Buffer
	status := okStyle.Render("VALID")
	if !v.Valid {
		status = errorStyle.Render("TAMPERED")
	}
	fmt.Fprintf(&buf, "Run %s: %s\n", v.RunID, status)
	writeCheck(&buf, "input", v.InputHash)
	writeCheck(&buf, "output", v.OutputHash)
	fmt.Fprintln(&buf, subtitleStyle.Render("checked at "+v.CheckedAt.Format("2006-01-02 15:04:05 MST")))
	return buf.Bytes()
}

func writeCheck(buf *bytes.Buffer, name string, c lineage.HashCheck) {
	if c.Match {
		fmt.Fprintf(buf, "  %-6s %s %s\n", name, okStyle.Render("ok"), c.Stored)
		return
	}
	fmt.Fprintf(buf, "  %-6s %s\n", name, errorStyle.Render("mismatch"))
	fmt.Fprintf(buf, "         stored     %s\n", c.Stored)
	fmt.Fprintf(buf, "         recomputed %s\n", c.Recomputed)
}
