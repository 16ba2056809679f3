package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorText    lipgloss.Color = "#cdd6f4"
	colorSubtext lipgloss.Color = "#a6adc8"
	colorRed     lipgloss.Color = "#f38ba8"
	colorYellow  lipgloss.Color = "#f9e2af"
	colorGreen   lipgloss.Color = "#a6e3a1"
	colorBlue    lipgloss.Color = "#89b4fa"
	colorSurface lipgloss.Color = "#45475a"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface).
			Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	labelStyle   = lipgloss.NewStyle().Foreground(colorSubtext)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	bustStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	safeStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	activeMarker = lipgloss.NewStyle().Foreground(colorGreen).Render("●")
)

// Render draws the report as a bordered terminal panel.
func Render(r Report) string {
	sections := []string{
		titleStyle.Render("Bust odds"),
		line("Bust", bustStyle.Render(r.BustPercent.StringFixed(1)+"%")),
		line("Safe", safeStyle.Render(r.SafePercent.StringFixed(1)+"%")),
		line("Continues a runner", valueStyle.Render(r.ContinuePercent.StringFixed(1)+"%")),
	}
	if !r.AllCompletedPercent.IsZero() {
		sections = append(sections, line("Only completed columns", warnStyle.Render(r.AllCompletedPercent.StringFixed(1)+"%")))
	}
	if !r.BlockedPercent.IsZero() {
		sections = append(sections, line("Needs a fourth runner", warnStyle.Render(r.BlockedPercent.StringFixed(1)+"%")))
	}
	for _, risk := range r.BustRisk {
		sections = append(sections, line(fmt.Sprintf("Bust within %d", risk.Rolls), valueStyle.Render(risk.Percent.StringFixed(1)+"%")))
	}

	sections = append(sections, "", titleStyle.Render("Runners"),
		line("Active", valueStyle.Render(fmt.Sprintf("%s (%d/3)", joinInts(r.Active), len(r.Active)))),
		line("Completed", valueStyle.Render(joinInts(r.Completed))))

	if len(r.Columns) > 0 {
		sections = append(sections, "", titleStyle.Render("Columns"), renderColumns(r.Columns))
	}

	ev := valueStyle.Render(r.EV.EV.StringFixed(2))
	if r.EV.Heuristic {
		ev += labelStyle.Render(" (first roll estimate)")
	}
	advice := safeStyle.Render(strings.ToUpper(string(r.EV.Advice)))
	if r.EV.Advice == AdviceStop {
		advice = bustStyle.Render(strings.ToUpper(string(r.EV.Advice)))
	}
	sections = append(sections, "", titleStyle.Render("Expected value"),
		line("EV", ev),
		line("Steps if safe", valueStyle.Render(r.EV.Q.StringFixed(2))),
		line("At risk", valueStyle.Render(fmt.Sprintf("%d", r.EV.U))),
		line("Advice", advice))

	if len(r.Choices) > 0 {
		sections = append(sections, "", titleStyle.Render("Choices"))
		for _, c := range r.Choices {
			label := fmt.Sprintf("%s → %s", c.Key, joinInts(c.Columns))
			value := fmt.Sprintf("EV %s  bust %s%%", c.EV.StringFixed(2), c.BustPercent.StringFixed(1))
			if c.Best {
				value = safeStyle.Render(value + " ★")
			} else {
				value = valueStyle.Render(value)
			}
			sections = append(sections, line(label, value))
		}
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderColumns(rows []ColumnRow) string {
	lines := []string{labelStyle.Render(fmt.Sprintf("%-4s %5s %8s %9s", "col", "left", "advance", "complete"))}
	for _, c := range rows {
		marker := " "
		if c.Active {
			marker = activeMarker
		}
		lines = append(lines, fmt.Sprintf("%s%-3d %5d %7s%% %8s%%", marker, c.Column, c.StepsRemaining,
			c.AdvancePercent.StringFixed(1), c.CompletionPercent.StringFixed(1)))
	}
	return strings.Join(lines, "\n")
}

func line(label, value string) string {
	return labelStyle.Width(24).Render(label) + value
}

func joinInts(v []int) string {
	if len(v) == 0 {
		return "none"
	}
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
