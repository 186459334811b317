package view

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#6B7280")
	onColor      = lipgloss.Color("#10B981")
	offColor     = lipgloss.Color("#EF4444")
	warnColor    = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	statusOnStyle  = lipgloss.NewStyle().Foreground(onColor).Bold(true)
	statusOffStyle = lipgloss.NewStyle().Foreground(offColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(mutedColor)
	noticeStyle    = lipgloss.NewStyle().Foreground(warnColor)

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	partHeaderStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
)
