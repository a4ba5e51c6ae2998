package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C1C6B2")).
			Background(lipgloss.Color("#353533"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5C5C5C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ED567A"))

	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	processingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	pausedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	completedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	cancelledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800"))
)

// statusIcon maps a task state to its one-cell marker.
func statusIcon(status string) string {
	switch status {
	case "pending":
		return pendingStyle.Render("○")
	case "processing":
		return processingStyle.Render("▶")
	case "paused":
		return pausedStyle.Render("⏸")
	case "completed":
		return completedStyle.Render("✓")
	case "failed":
		return failedStyle.Render("✗")
	case "cancelled":
		return cancelledStyle.Render("◼")
	default:
		return " "
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "processing":
		return processingStyle
	case "paused":
		return pausedStyle
	case "completed":
		return completedStyle
	case "failed":
		return failedStyle
	case "cancelled":
		return cancelledStyle
	default:
		return pendingStyle
	}
}
