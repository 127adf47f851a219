package panel

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	detail  lipgloss.Style
	good    lipgloss.Style
	warning lipgloss.Style
	active  lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
	help    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
		help:    lipgloss.NewStyle().Faint(true).MarginTop(1),
	}
}
