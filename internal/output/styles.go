package output

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	colorDanger  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#4B5563"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)

	metricLabelStyle = lipgloss.NewStyle().
				Foreground(colorMuted)

	metricValueStyle = lipgloss.NewStyle().
				Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	okStyle      = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
)

// gateStyle colours a gate state: computed green, gated amber
func gateStyle(state string) lipgloss.Style {
	switch state {
	case "computed":
		return okStyle
	case "not_applicable", "":
		return subtitleStyle
	default:
		return warningStyle
	}
}

// metricCard renders a bordered label/value card
func metricCard(label, value string, width int) string {
	content := metricLabelStyle.Render(label) + "\n" + metricValueStyle.Render(value)
	return cardStyle.Width(width).Render(content)
}
