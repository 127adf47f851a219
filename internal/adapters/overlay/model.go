// Package overlay is the quiz surface: a bubbletea sub-model hosted by
// whichever program is on the terminal, plus the Surface the agent
// drives it through.
package overlay

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

// CloseRequestedMsg asks the host to dismiss the overlay and resume
// playback.
type CloseRequestedMsg struct{}

// answerResultMsg reconciles an optimistic submission with the
// backend's verdict.
type answerResultMsg struct {
	entry  int
	result domain.AnswerResult
	err    error
}

type entryState int

const (
	stateUnanswered entryState = iota
	stateSubmitting
	stateAnswered
)

type entry struct {
	quiz     domain.Quiz
	state    entryState
	selected int
	result   domain.AnswerResult
	err      error
}

type Model struct {
	bus     *bus.Bus
	segment domain.Segment
	entries []entry
	cursor  int
	styles  styles
}

// NewModel builds the quiz list for a segment. Review entries mark
// their quizzes as already answered so they render disabled with the
// recorded answer.
func NewModel(b *bus.Bus, segment domain.Segment, review []domain.ReviewItem) Model {
	answered := make(map[domain.QuizID]domain.ReviewItem, len(review))
	for _, item := range review {
		answered[item.QuizID] = item
	}

	entries := make([]entry, 0, len(segment.Quizzes))
	for _, quiz := range segment.Quizzes {
		e := entry{quiz: quiz}
		if item, ok := answered[quiz.ID]; ok {
			e.state = stateAnswered
			e.selected = item.SelectedIndex
			e.result = domain.AnswerResult{
				IsCorrect:    item.IsCorrect,
				CorrectIndex: item.CorrectIndex,
				Explanation:  item.Explanation,
			}
		}
		entries = append(entries, e)
	}

	return Model{
		bus:     b,
		segment: segment,
		entries: entries,
		cursor:  firstOpen(entries),
		styles:  newStyles(),
	}
}

func firstOpen(entries []entry) int {
	for i, e := range entries {
		if e.state == stateUnanswered {
			return i
		}
	}
	return 0
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case answerResultMsg:
		return m.reconcile(msg), nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if len(m.entries) == 0 {
		if msg.String() == "esc" || msg.String() == "q" {
			return m, func() tea.Msg { return CloseRequestedMsg{} }
		}
		return m, nil
	}

	current := &m.entries[m.cursor]
	switch msg.String() {
	case "esc", "q":
		return m, func() tea.Msg { return CloseRequestedMsg{} }
	case "tab", "n":
		m.cursor = (m.cursor + 1) % len(m.entries)
	case "shift+tab", "p":
		m.cursor = (m.cursor - 1 + len(m.entries)) % len(m.entries)
	case "up", "k":
		if current.state == stateUnanswered && current.selected > 0 {
			current.selected--
		}
	case "down", "j":
		if current.state == stateUnanswered && current.selected < len(current.quiz.Options)-1 {
			current.selected++
		}
	case "enter", " ":
		return m.submit(m.cursor)
	}
	return m, nil
}

// submit optimistically locks the question and sends the answer. The
// options stay locked unless the backend rejects the call.
func (m Model) submit(index int) (Model, tea.Cmd) {
	e := &m.entries[index]
	if e.state != stateUnanswered {
		return m, nil
	}
	e.state = stateSubmitting
	e.err = nil

	b := m.bus
	quizID := e.quiz.ID
	selected := e.selected
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		payload, err := b.Request(ctx, bus.TopicQuizAnswer, bus.SubmitAnswer{
			QuizID:        quizID,
			SelectedIndex: selected,
		})
		if err != nil {
			return answerResultMsg{entry: index, err: err}
		}
		return answerResultMsg{entry: index, result: payload.(domain.AnswerResult)}
	}
}

func (m Model) reconcile(msg answerResultMsg) Model {
	if msg.entry < 0 || msg.entry >= len(m.entries) {
		return m
	}
	e := &m.entries[msg.entry]
	if e.state != stateSubmitting {
		return m
	}
	if msg.err != nil {
		// Back to answerable, with a retryable error on display.
		e.state = stateUnanswered
		e.err = msg.err
		return m
	}
	e.state = stateAnswered
	e.result = msg.result
	return m
}

// Answered reports how many quizzes have an accepted answer.
func (m Model) Answered() int {
	count := 0
	for _, e := range m.entries {
		if e.state == stateAnswered {
			count++
		}
	}
	return count
}

func (m Model) View() string {
	var b strings.Builder
	title := m.segment.TopicTitle
	if title == "" {
		title = fmt.Sprintf("segment %d", m.segment.ID)
	}
	b.WriteString(m.styles.title.Render(fmt.Sprintf("Quiz - %s", title)))
	b.WriteString("\n")

	if len(m.entries) == 0 {
		b.WriteString(m.styles.empty.Render("No questions for this segment yet."))
		b.WriteString("\n")
		return b.String()
	}

	for i, e := range m.entries {
		b.WriteString(m.renderEntry(i, e))
	}
	b.WriteString(m.styles.help.Render("up/down select, enter answer, tab next, esc resume"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderEntry(index int, e entry) string {
	var b strings.Builder

	marker := "  "
	if index == m.cursor {
		marker = m.styles.cursor.Render("> ")
	}
	b.WriteString(fmt.Sprintf("%s%s\n", marker, m.styles.question.Render(
		fmt.Sprintf("%d. %s", index+1, e.quiz.Question))))

	for i, option := range e.quiz.Options {
		b.WriteString(m.renderOption(index, e, i, option))
	}

	switch {
	case e.state == stateSubmitting:
		b.WriteString(m.styles.pending.Render("   checking..."))
		b.WriteString("\n")
	case e.state == stateAnswered && e.result.IsCorrect:
		b.WriteString(m.styles.correct.Render("   correct"))
		b.WriteString("\n")
	case e.state == stateAnswered:
		b.WriteString(m.styles.wrong.Render(fmt.Sprintf("   incorrect - answer: %s", m.optionLabel(e, e.result.CorrectIndex))))
		b.WriteString("\n")
	case e.err != nil:
		b.WriteString(m.styles.wrong.Render("   submit failed, press enter to retry"))
		b.WriteString("\n")
	}
	if e.state == stateAnswered && e.result.Explanation != "" {
		b.WriteString(m.styles.explain.Render("   " + e.result.Explanation))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderOption(entryIndex int, e entry, optionIndex int, option string) string {
	selected := e.selected == optionIndex
	mark := " "
	if selected {
		mark = "x"
	}
	line := fmt.Sprintf("   [%s] %s", mark, option)

	style := m.styles.option
	switch {
	case e.state == stateAnswered && optionIndex == e.result.CorrectIndex:
		style = m.styles.correct
	case e.state == stateAnswered && selected && !e.result.IsCorrect:
		style = m.styles.wrong
	case e.state != stateUnanswered:
		style = m.styles.disabled
	case entryIndex == m.cursor && selected:
		style = m.styles.selected
	}
	return style.Render(line) + "\n"
}

func (m Model) optionLabel(e entry, index int) string {
	if index >= 0 && index < len(e.quiz.Options) {
		return e.quiz.Options[index]
	}
	return fmt.Sprintf("option %d", index+1)
}
