package overlay

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	question lipgloss.Style
	option   lipgloss.Style
	selected lipgloss.Style
	disabled lipgloss.Style
	correct  lipgloss.Style
	wrong    lipgloss.Style
	pending  lipgloss.Style
	explain  lipgloss.Style
	cursor   lipgloss.Style
	empty    lipgloss.Style
	help     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		question: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		option:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		disabled: lipgloss.NewStyle().Faint(true),
		correct:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		wrong:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		pending:  lipgloss.NewStyle().Faint(true).Italic(true),
		explain:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		cursor:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		empty:    lipgloss.NewStyle().Faint(true),
		help:     lipgloss.NewStyle().Faint(true).MarginTop(1),
	}
}
