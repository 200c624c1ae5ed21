package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds all the styles for the monitor.
var styles = struct {
	Title    lipgloss.Style
	HelpText lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Box      lipgloss.Style
	BoxTitle lipgloss.Style
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1),

	HelpText: lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")),

	Success: lipgloss.NewStyle().
		Foreground(lipgloss.Color("82")).
		Bold(true),

	Warning: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	Error: lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true),

	Muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(1, 2).
		Width(52),

	BoxTitle: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")),
}

// utilizationStyle colors the in-use count by pressure on the pool.
func utilizationStyle(inUse, maxSize int) lipgloss.Style {
	switch {
	case maxSize > 0 && inUse >= maxSize:
		return styles.Error
	case maxSize > 0 && inUse*2 >= maxSize:
		return styles.Warning
	default:
		return styles.Success
	}
}
