// Package report renders one-shot command output (task status, segment
// listings, answer reviews, user stats) through bubbletea so the styling
// pipeline matches the interactive panel.
package report

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	report Report
	styles styles
	output string
}

func newModel(report Report) model {
	return model{
		report: report,
		styles: newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderView(m.report, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Render produces the report's terminal output. The program runs with
// discarded output; the rendered view is read off the final model.
func Render(report Report) (string, error) {
	p := tea.NewProgram(
		newModel(report),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return result.output, nil
}
