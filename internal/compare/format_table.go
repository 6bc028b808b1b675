package compare

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TableFormatter formats comparison results as a console table
type TableFormatter struct{}

// Format generates a formatted table comparing methods
func (tf *TableFormatter) Format(compSet *ComparisonSet) string {
	var sb strings.Builder

	sb.WriteString("OPERATIONAL RISK CAPITAL COMPARISON\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString(fmt.Sprintf("Entity: %s\n", compSet.EntityID))
	sb.WriteString(fmt.Sprintf("As of:  %s\n", compSet.AsOf.Format("2006-01-02")))
	sb.WriteString("\n")

	nameWidth := 20
	numWidth := 18

	sb.WriteString(fmt.Sprintf("%-*s %*s %*s %*s\n",
		nameWidth, "Method",
		numWidth, "Capital",
		numWidth, "RWA",
		numWidth, "Gate"))
	sb.WriteString(strings.Repeat("-", 80) + "\n")

	sb.WriteString(tf.formatRow(compSet.BaseResult, nameWidth, numWidth, true))

	if len(compSet.AlternativeResults) > 0 {
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		for _, alt := range compSet.AlternativeResults {
			sb.WriteString(tf.formatRow(&alt, nameWidth, numWidth, false))
		}
	}

	sb.WriteString(strings.Repeat("=", 80) + "\n")

	if len(compSet.AlternativeResults) > 0 {
		sb.WriteString("\nCOMPARISON TO BASE\n")
		sb.WriteString(strings.Repeat("-", 80) + "\n")

		for _, alt := range compSet.AlternativeResults {
			if !alt.Available() {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n%s:\n", alt.Method))
			sb.WriteString(fmt.Sprintf("  Capital:  %s%s (%s%%)\n",
				tf.deltaSymbol(alt.CapitalDiffFromBase),
				tf.formatDecimal(alt.CapitalDiffFromBase),
				alt.CapitalPctFromBase.StringFixed(1)))
			sb.WriteString(fmt.Sprintf("  RWA:      %s%s\n",
				tf.deltaSymbol(alt.RWADiffFromBase),
				tf.formatDecimal(alt.RWADiffFromBase)))
		}
		sb.WriteString("\n")
	}

	if len(compSet.Observations) > 0 {
		sb.WriteString("\nOBSERVATIONS\n")
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		for _, obs := range compSet.Observations {
			sb.WriteString(fmt.Sprintf("- %s\n", obs))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatRow formats a single method row
func (tf *TableFormatter) formatRow(result *ComparisonResult, nameWidth, numWidth int, isBase bool) string {
	name := string(result.Method)
	if isBase {
		name += " (base)"
	}
	if !result.Available() {
		return fmt.Sprintf("%-*s %*s\n", nameWidth, tf.truncate(name, nameWidth), numWidth, "unavailable")
	}

	return fmt.Sprintf("%-*s %*s %*s %*s\n",
		nameWidth, tf.truncate(name, nameWidth),
		numWidth, tf.formatDecimal(result.Capital),
		numWidth, tf.formatDecimal(result.RWA),
		numWidth, tf.truncate(string(result.GateState), numWidth))
}

// formatDecimal formats an amount in crore with thousands separators
func (tf *TableFormatter) formatDecimal(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String() + frac
}

// deltaSymbol returns the sign to print in front of an absolute delta
func (tf *TableFormatter) deltaSymbol(delta decimal.Decimal) string {
	if delta.IsPositive() {
		return "+"
	} else if delta.IsNegative() {
		return "-"
	}
	return " "
}

// truncate truncates a string to maxLen
func (tf *TableFormatter) truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// FormatCompact creates a compact single-line summary of the comparison
func (tf *TableFormatter) FormatCompact(compSet *ComparisonSet) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Base: %s %s | ", compSet.BaseMethod, tf.formatDecimal(compSet.BaseResult.Capital)))

	for i, alt := range compSet.AlternativeResults {
		if i > 0 {
			sb.WriteString(" | ")
		}
		change := "n/a"
		switch {
		case !alt.Available():
		case alt.CapitalDiffFromBase.IsPositive():
			change = "+" + tf.formatDecimal(alt.CapitalDiffFromBase)
		case alt.CapitalDiffFromBase.IsNegative():
			change = "-" + tf.formatDecimal(alt.CapitalDiffFromBase)
		default:
			change = "="
		}
		sb.WriteString(fmt.Sprintf("%s: %s", alt.Method, change))
	}

	return sb.String()
}
