package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// ConsoleFormatter renders a styled terminal report
type ConsoleFormatter struct {
	// Verbose adds every intermediate value
	Verbose bool
}

func (c ConsoleFormatter) Name() string { return "console" }

func (c ConsoleFormatter) Format(res *domain.CalculationResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, titleStyle.Render("OPERATIONAL RISK CAPITAL"))
	fmt.Fprintln(&buf, subtitleStyle.Render(fmt.Sprintf("%s | %s method | as of %s",
		res.EntityID, res.Method, res.AsOfDate.Format("2006-01-02"))))
	fmt.Fprintln(&buf)

	fmt.Fprintln(&buf, lipgloss.JoinHorizontal(lipgloss.Top,
		metricCard("Capital requirement (cr)", FormatAmount(res.CapitalRequirement), 30),
		metricCard("Risk-weighted assets (cr)", FormatAmount(res.RiskWeightedAssets), 30),
	))

	gate := string(res.GateState)
	line := "Loss multiplier: " + gateStyle(gate).Render(gate)
	if res.GateReason != "" {
		line += subtitleStyle.Render(" (" + res.GateReason + ")")
	}
	fmt.Fprintln(&buf, line)
	if m, ok := res.Intermediates["loss_multiplier"]; ok {
		fmt.Fprintf(&buf, "Multiplier value: %s\n", m)
	}

	if o := res.SupervisorOverride; o != nil {
		fmt.Fprintln(&buf, sectionStyle.Render("SUPERVISOR OVERRIDE"))
		fmt.Fprintf(&buf, "  %s %s replaces calculated %s\n", warningStyle.Render("!"),
			FormatAmount(o.OverrideCapital), FormatAmount(o.CalculatedCapital))
		fmt.Fprintf(&buf, "  %s, approved by %s under %s\n", o.OverrideID, o.ApprovedBy, o.ApprovalRef)
	}

	fmt.Fprintln(&buf, sectionStyle.Render("PARAMETERS"))
	for _, ref := range res.ParameterRefs {
		fmt.Fprintf(&buf, "  %-10s %s  %s\n", ref.Model, ref.VersionID, subtitleStyle.Render(short(ref.ContentDigest)))
	}

	if c.Verbose {
		fmt.Fprintln(&buf, sectionStyle.Render("INTERMEDIATES"))
		width := 0
		for k := range res.Intermediates {
			if len(k) > width {
				width = len(k)
			}
		}
		for _, k := range sortedKeys(res.Intermediates) {
			fmt.Fprintf(&buf, "  %-*s  %s\n", width, k, res.Intermediates[k])
		}
		if len(res.IncludedLossIDs) > 0 {
			fmt.Fprintf(&buf, "  %-*s  %s\n", width, "included_losses", strings.Join(res.IncludedLossIDs, ", "))
		}
	}

	if len(res.Anomalies) > 0 {
		fmt.Fprintln(&buf, sectionStyle.Render("ANOMALIES"))
		for _, a := range res.Anomalies {
			fmt.Fprintf(&buf, "  %s %s\n", warningStyle.Render("!"), a)
		}
	}

	fmt.Fprintln(&buf, sectionStyle.Render("LINEAGE"))
	fmt.Fprintf(&buf, "  run     %s\n", res.RunID)
	fmt.Fprintf(&buf, "  input   %s\n", res.InputHash)
	fmt.Fprintf(&buf, "  output  %s\n", res.OutputHash)

	return buf.Bytes(), nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
