// Package panel is the status surface: session, task progress,
// connection state, segments and settings, rendered from coordinator
// snapshots plus broadcasts. Push is the primary update path; a status
// poll runs only while the push channel is down, and the two are never
// active at the same time.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/karatal/video-quiz-cli/internal/adapters/overlay"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

const defaultPollInterval = 3 * time.Second

var languageCycle = []string{"en", "es", "de"}

type Config struct {
	Bus    *bus.Bus
	Logger *slog.Logger

	// OpenQuiz and CloseQuiz reach the agent. Nil is fine for render-only
	// uses; the keybindings just go dead.
	OpenQuiz  func(ctx context.Context) error
	CloseQuiz func(ctx context.Context) error

	PollInterval time.Duration
}

type busEventMsg struct{ event bus.Event }

type eventsClosedMsg struct{}

type snapshotMsg struct {
	snapshot bus.Snapshot
	err      error
}

type pollTickMsg struct{ generation int }

type pollResultMsg struct {
	generation int
	task       domain.Task
	err        error
}

type settingsAckMsg struct {
	settings domain.Settings
	err      error
}

type Model struct {
	bus    *bus.Bus
	logger *slog.Logger
	styles styles

	openQuiz     func(ctx context.Context) error
	closeQuiz    func(ctx context.Context) error
	pollInterval time.Duration

	events      <-chan bus.Event
	unsubscribe func()

	session    domain.Session
	settings   domain.Settings
	task       domain.Task
	conn       bus.ConnChange
	segments   []domain.Segment
	affordance bus.Affordance
	notice     string

	// polling is the degraded fallback path. generation invalidates
	// in-flight ticks the instant polling stops, so a late tick from a
	// stopped poller can never race a push update.
	polling        bool
	pollGeneration int

	quiz *overlay.Model
}

func New(config Config) Model {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events, unsubscribe := config.Bus.Subscribe(64)
	return Model{
		bus:          config.Bus,
		logger:       logger.With("component", "panel"),
		styles:       newStyles(),
		openQuiz:     config.OpenQuiz,
		closeQuiz:    config.CloseQuiz,
		pollInterval: durationOr(config.PollInterval, defaultPollInterval),
		events:       events,
		unsubscribe:  unsubscribe,
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.requestSnapshot(), m.waitForEvent())
}

func (m Model) requestSnapshot() tea.Cmd {
	b := m.bus
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload, err := b.Request(ctx, bus.TopicStateSnapshot, nil)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{snapshot: payload.(bus.Snapshot)}
	}
}

// waitForEvent pumps one bus broadcast into the program as a tea.Msg.
// Update re-issues it after every delivery.
func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return busEventMsg{event: event}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case busEventMsg:
		model, cmd := m.applyEvent(msg.event)
		return model, tea.Batch(cmd, model.waitForEvent())
	case eventsClosedMsg:
		return m, tea.Quit
	case snapshotMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("snapshot failed: %v", msg.err)
			return m, nil
		}
		m.session = msg.snapshot.Session
		m.settings = msg.snapshot.Settings
		m.task = msg.snapshot.Task
		m.conn = bus.ConnChange{TaskID: msg.snapshot.Connection.TaskID, State: msg.snapshot.Connection.State}
		m.segments = msg.snapshot.Segments
		return m, nil
	case pollTickMsg:
		return m.handlePollTick(msg)
	case pollResultMsg:
		return m.handlePollResult(msg)
	case settingsAckMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("settings rejected: %v", msg.err)
			return m, nil
		}
		// Echo only after the coordinator has persisted and acked.
		m.settings = msg.settings
		m.notice = ""
		return m, nil
	case overlay.CloseRequestedMsg:
		return m, m.dismissQuiz()
	}

	if m.quiz != nil {
		quiz, cmd := m.quiz.Update(msg)
		m.quiz = &quiz
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The quiz surface captures input while visible.
	if m.quiz != nil {
		quiz, cmd := m.quiz.Update(msg)
		m.quiz = &quiz
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.unsubscribe()
		return m, tea.Quit
	case "o":
		if m.openQuiz == nil {
			return m, nil
		}
		open := m.openQuiz
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = open(ctx)
			return nil
		}
	case "e":
		next := m.settings
		next.Enabled = !next.Enabled
		return m, m.sendSettings(next)
	case "l":
		next := m.settings
		next.Language = nextLanguage(next.Language)
		return m, m.sendSettings(next)
	}
	return m, nil
}

func nextLanguage(current string) string {
	for i, language := range languageCycle {
		if language == current {
			return languageCycle[(i+1)%len(languageCycle)]
		}
	}
	return languageCycle[0]
}

// sendSettings ships the whole settings struct as one atomic change. No
// optimistic echo: the view keeps the old values until the ack lands.
func (m Model) sendSettings(settings domain.Settings) tea.Cmd {
	b := m.bus
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload, err := b.Request(ctx, bus.TopicConfigSet, settings)
		if err != nil {
			return settingsAckMsg{err: err}
		}
		return settingsAckMsg{settings: payload.(domain.Settings)}
	}
}

func (m Model) applyEvent(event bus.Event) (Model, tea.Cmd) {
	switch event.Topic {
	case bus.EventSessionChanged:
		m.session = event.Payload.(domain.Session)
		if !m.session.Authenticated() {
			m.notice = "logged out"
		}
		return m, nil

	case bus.EventTaskChanged:
		m.task = event.Payload.(domain.Task)
		m.segments = nil
		m.affordance = bus.Affordance{}
		return m, nil

	case bus.EventConnState:
		change := event.Payload.(bus.ConnChange)
		m.conn = change
		switch change.State {
		case domain.ConnOpen:
			// Push is back; it owns updates from here.
			m.stopStatusPolling()
			return m, nil
		case domain.ConnReconnecting, domain.ConnClosed:
			if change.State == domain.ConnClosed && m.task.Status.Terminal() {
				m.stopStatusPolling()
				return m, nil
			}
			return m, m.startStatusPolling()
		}
		return m, nil

	case bus.EventProgress:
		progress := event.Payload.(bus.Progress)
		m.setStatusProcessing(progress)
		return m, nil

	case bus.EventCompleted:
		completed := event.Payload.(bus.Completed)
		m.setStatusCompleted(completed)
		return m, nil

	case bus.EventTaskError:
		failure := event.Payload.(bus.TaskFailed)
		m.stopStatusPolling()
		m.task.Status = domain.TaskStatusFailed
		m.task.ErrorMessage = failure.Message
		return m, nil

	case bus.EventSegmentReady:
		ready := event.Payload.(bus.SegmentReady)
		if ready.TaskID == m.task.ID {
			m.segments = append(m.segments, ready.Segment)
		}
		return m, nil

	case bus.EventSettings:
		m.settings = event.Payload.(domain.Settings)
		return m, nil

	case bus.EventAffordance:
		m.affordance = event.Payload.(bus.Affordance)
		return m, nil

	case bus.EventOverlay:
		change := event.Payload.(bus.Overlay)
		if !change.Visible {
			m.quiz = nil
			return m, nil
		}
		quiz := overlay.NewModel(m.bus, change.Segment, change.Review)
		m.quiz = &quiz
		return m, nil
	}
	return m, nil
}

// setStatusProcessing applies a push progress update. First rule: stop
// the poll path, so two sources never drive the same fields.
func (m *Model) setStatusProcessing(progress bus.Progress) {
	m.stopStatusPolling()
	if progress.Status != "" {
		m.task.Status = progress.Status
	}
	m.task.Progress = progress.Progress
	m.task.CurrentStage = progress.CurrentStage
}

// setStatusCompleted applies a push completion. Same first rule.
func (m *Model) setStatusCompleted(completed bus.Completed) {
	m.stopStatusPolling()
	m.task.Status = domain.TaskStatusCompleted
	m.task.Progress = 100
}

func (m *Model) startStatusPolling() tea.Cmd {
	if m.polling {
		return nil
	}
	m.polling = true
	m.pollGeneration++
	return m.pollTick(m.pollGeneration)
}

func (m *Model) stopStatusPolling() {
	if !m.polling {
		return
	}
	m.polling = false
	m.pollGeneration++
}

func (m Model) pollTick(generation int) tea.Cmd {
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{generation: generation}
	})
}

func (m Model) handlePollTick(msg pollTickMsg) (tea.Model, tea.Cmd) {
	if !m.polling || msg.generation != m.pollGeneration {
		return m, nil
	}
	b := m.bus
	generation := msg.generation
	taskID := m.task.ID
	fetch := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		payload, err := b.Request(ctx, bus.TopicVideoStatus, bus.TaskRef{TaskID: taskID})
		if err != nil {
			return pollResultMsg{generation: generation, err: err}
		}
		return pollResultMsg{generation: generation, task: payload.(domain.Task)}
	}
	return m, tea.Batch(fetch, m.pollTick(generation))
}

func (m Model) handlePollResult(msg pollResultMsg) (tea.Model, tea.Cmd) {
	if !m.polling || msg.generation != m.pollGeneration {
		// A straggler from a poller that push already superseded.
		return m, nil
	}
	if msg.err != nil {
		m.notice = fmt.Sprintf("status poll failed: %v", msg.err)
		return m, nil
	}
	m.notice = ""
	m.task = msg.task
	if m.task.Status.Terminal() {
		m.stopStatusPolling()
	}
	return m, nil
}

func (m Model) dismissQuiz() tea.Cmd {
	if m.closeQuiz == nil {
		return nil
	}
	dismiss := m.closeQuiz
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = dismiss(ctx)
		return nil
	}
}

func (m Model) View() string {
	if m.quiz != nil {
		return m.quiz.View()
	}

	var b strings.Builder
	b.WriteString(m.styles.title.Render("video quiz"))
	b.WriteString("\n\n")

	if m.session.Authenticated() {
		b.WriteString(m.styles.label.Render("session  "))
		b.WriteString(m.styles.value.Render(m.session.User.Email))
	} else {
		b.WriteString(m.styles.warning.Render("not logged in"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.label.Render("task     "))
	if m.task.ID == "" {
		b.WriteString(m.styles.empty.Render("none"))
	} else {
		b.WriteString(m.styles.value.Render(fmt.Sprintf("%s  %s %.0f%%", m.task.ID, m.task.Status, m.task.Progress)))
		if m.task.CurrentStage != "" {
			b.WriteString(m.styles.detail.Render("  " + m.task.CurrentStage))
		}
	}
	b.WriteString("\n")

	b.WriteString(m.styles.label.Render("push     "))
	b.WriteString(m.connLine())
	b.WriteString("\n")

	if m.task.ErrorMessage != "" {
		b.WriteString(m.styles.warning.Render("error    " + m.task.ErrorMessage))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.section.Render(fmt.Sprintf("segments (%d)", len(m.segments))))
	b.WriteString("\n")
	if len(m.segments) == 0 {
		b.WriteString(m.styles.empty.Render("  none yet"))
		b.WriteString("\n")
	}
	for _, segment := range m.segments {
		marker := "  "
		if m.affordance.Visible && m.affordance.SegmentID == segment.ID {
			marker = m.styles.active.Render("* ")
		}
		b.WriteString(fmt.Sprintf("%s%s", marker, m.styles.value.Render(
			fmt.Sprintf("%-24s %s-%s  %d quizzes",
				segment.TopicTitle, clockTime(segment.StartTime), clockTime(segment.EndTime), len(segment.Quizzes)))))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.section.Render(fmt.Sprintf("settings  lang=%s enabled=%t", m.settings.Language, m.settings.Enabled)))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(m.styles.warning.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.help.Render("o open quiz, e toggle, l language, q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) connLine() string {
	state := m.conn.State
	if state == "" {
		state = domain.ConnIdle
	}
	text := string(state)
	if m.polling {
		text += " (polling)"
	}
	switch state {
	case domain.ConnOpen:
		return m.styles.good.Render(text)
	case domain.ConnReconnecting:
		return m.styles.warning.Render(text)
	default:
		return m.styles.detail.Render(text)
	}
}

func clockTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
