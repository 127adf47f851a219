package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type fetchDoneMsg struct {
	err error
}

type fetchSpinnerModel struct {
	spinner spinner.Model
	label   string
	fetch   tea.Cmd
	err     error
	done    bool
}

func (m fetchSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m fetchSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case fetchDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m fetchSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runFetchSpinner runs fetch while a spinner plays on output and hands back
// whatever fetch produced. The spinner quits as soon as the fetch lands;
// spinner plumbing failures take precedence over the fetch's own error.
func runFetchSpinner[T any](ctx context.Context, output io.Writer, label string, fetch func(context.Context) (T, error)) (T, error) {
	var result T

	fetchCmd := func() tea.Msg {
		var err error
		result, err = fetch(ctx)
		return fetchDoneMsg{err: err}
	}

	p := tea.NewProgram(
		fetchSpinnerModel{
			spinner: spinner.New(
				spinner.WithSpinner(spinner.Dot),
				spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
			),
			label: label,
			fetch: fetchCmd,
		},
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		var zero T
		return zero, err
	}

	final, ok := finalModel.(fetchSpinnerModel)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	if final.err != nil {
		var zero T
		return zero, final.err
	}

	return result, nil
}
