package panel

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatal/video-quiz-cli/internal/adapters/overlay"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	return bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newModel(t *testing.T, b *bus.Bus) Model {
	t.Helper()
	return New(Config{
		Bus:          b,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		PollInterval: 10 * time.Millisecond,
	})
}

func apply(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	model, ok := updated.(Model)
	require.True(t, ok)
	return model, cmd
}

func event(topic string, payload any) busEventMsg {
	return busEventMsg{event: bus.Event{Topic: topic, Payload: payload}}
}

func processingTask() domain.Task {
	return domain.Task{ID: "task-1", Status: domain.TaskStatusProcessing, Progress: 40}
}

func TestPollingStartsWhenPushDegraded(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))
	m.task = processingTask()

	m, cmd := apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnReconnecting}))
	assert.True(t, m.polling)
	assert.NotNil(t, cmd)

	m, _ = apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnOpen}))
	assert.False(t, m.polling)
}

func TestCompletedEventStopsPollPath(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))
	m.task = processingTask()

	m, _ = apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnReconnecting}))
	require.True(t, m.polling)

	m, _ = apply(t, m, event(bus.EventCompleted, bus.Completed{TaskID: "task-1", TotalSegments: 3}))
	assert.False(t, m.polling)
	assert.Equal(t, domain.TaskStatusCompleted, m.task.Status)
	assert.Equal(t, float64(100), m.task.Progress)
}

func TestStalePollResultCannotOverridePush(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))
	m.task = processingTask()

	m, _ = apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnReconnecting}))
	require.True(t, m.polling)
	staleGeneration := m.pollGeneration

	// Push comes back mid-poll; its progress update stops the poller.
	m, _ = apply(t, m, event(bus.EventProgress, bus.Progress{
		TaskID: "task-1", Progress: 55, CurrentStage: "quiz_generation", Status: domain.TaskStatusProcessing,
	}))
	require.False(t, m.polling)

	// The in-flight poll answer lands afterwards claiming completion.
	// It belongs to a dead generation and must be dropped: the status
	// line never flashes "completed".
	m, _ = apply(t, m, pollResultMsg{
		generation: staleGeneration,
		task:       domain.Task{ID: "task-1", Status: domain.TaskStatusCompleted, Progress: 100},
	})
	assert.Equal(t, domain.TaskStatusProcessing, m.task.Status)
	assert.Equal(t, float64(55), m.task.Progress)
}

func TestClosedTerminalTaskDoesNotPoll(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))
	m.task = processingTask()

	m, _ = apply(t, m, event(bus.EventCompleted, bus.Completed{TaskID: "task-1"}))
	m, cmd := apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnClosed}))
	assert.False(t, m.polling)
	// Only the event pump is re-armed; no poll tick is scheduled.
	_ = cmd
}

func TestPollTickFetchesStatus(t *testing.T) {
	t.Parallel()
	b := testBus(t)
	inbox := make(chan bus.Envelope, 4)
	b.HandleTopics(inbox, bus.TopicVideoStatus)
	go func() {
		for envelope := range inbox {
			envelope.Respond(domain.Task{ID: "task-1", Status: domain.TaskStatusProcessing, Progress: 70}, nil)
		}
	}()
	t.Cleanup(func() { close(inbox) })

	m := newModel(t, b)
	m.task = processingTask()

	m, _ = apply(t, m, event(bus.EventConnState, bus.ConnChange{TaskID: "task-1", State: domain.ConnReconnecting}))
	m, cmd := apply(t, m, pollTickMsg{generation: m.pollGeneration})
	require.NotNil(t, cmd)

	// The batched command includes the fetch; run it and feed back the
	// first poll result it produces.
	result := runUntil[pollResultMsg](t, cmd)
	m, _ = apply(t, m, result)
	assert.Equal(t, float64(70), m.task.Progress)
}

// runUntil executes a command tree until a message of type T appears.
func runUntil[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	queue := []tea.Cmd{cmd}
	deadline := time.Now().Add(2 * time.Second)
	for len(queue) > 0 && time.Now().Before(deadline) {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if typed, ok := msg.(T); ok {
			return typed
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
		}
	}
	t.Fatalf("command tree never produced %T", *new(T))
	var zero T
	return zero
}

func TestSettingsEchoOnlyAfterAck(t *testing.T) {
	t.Parallel()
	b := testBus(t)
	inbox := make(chan bus.Envelope, 4)
	b.HandleTopics(inbox, bus.TopicConfigSet)
	go func() {
		for envelope := range inbox {
			envelope.Respond(envelope.Payload.(domain.Settings), nil)
		}
	}()
	t.Cleanup(func() { close(inbox) })

	m := newModel(t, b)
	m.settings = domain.Settings{Language: "en"}

	m, cmd := apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	require.NotNil(t, cmd)
	// Not echoed yet: the coordinator has not acknowledged.
	assert.Equal(t, "en", m.settings.Language)

	ack := runUntil[settingsAckMsg](t, cmd)
	m, _ = apply(t, m, ack)
	assert.Equal(t, "es", m.settings.Language)
}

func TestOverlayBroadcastTakesOverView(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))

	segment := domain.Segment{
		ID:         1,
		TopicTitle: "Channels",
		Quizzes: []domain.Quiz{
			{ID: 1, Question: "What does close() do?", Options: []string{"a", "b"}, CorrectIndex: -1},
		},
	}
	m, _ = apply(t, m, event(bus.EventOverlay, bus.Overlay{
		SegmentID: 1, Visible: true, Auto: true, Segment: segment,
	}))
	require.NotNil(t, m.quiz)
	assert.Contains(t, m.View(), "What does close() do?")

	m, _ = apply(t, m, event(bus.EventOverlay, bus.Overlay{Visible: false}))
	assert.Nil(t, m.quiz)
	assert.Contains(t, m.View(), "video quiz")
}

func TestSegmentBroadcastsAppendInOrder(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))
	m.task = processingTask()

	m, _ = apply(t, m, event(bus.EventSegmentReady, bus.SegmentReady{
		TaskID: "task-1", Segment: domain.Segment{ID: 2, TopicTitle: "Later"},
	}))
	m, _ = apply(t, m, event(bus.EventSegmentReady, bus.SegmentReady{
		TaskID: "task-1", Segment: domain.Segment{ID: 1, TopicTitle: "Earlier"},
	}))
	// A segment for some other task never shows up.
	m, _ = apply(t, m, event(bus.EventSegmentReady, bus.SegmentReady{
		TaskID: "task-9", Segment: domain.Segment{ID: 99},
	}))

	require.Len(t, m.segments, 2)
	assert.Equal(t, domain.SegmentID(2), m.segments[0].ID)
	assert.Equal(t, domain.SegmentID(1), m.segments[1].ID)
}

func TestSnapshotSeedsView(t *testing.T) {
	t.Parallel()
	m := newModel(t, testBus(t))

	m, _ = apply(t, m, snapshotMsg{snapshot: bus.Snapshot{
		Session:  domain.Session{AccessToken: "at", User: domain.User{Email: "ada@example.com"}},
		Settings: domain.Settings{Language: "en", Enabled: true},
		Task:     processingTask(),
		Connection: domain.ConnectionStatus{
			State: domain.ConnOpen, TaskID: "task-1",
		},
		Segments: []domain.Segment{{ID: 1, TopicTitle: "Intro"}},
	}})

	view := m.View()
	assert.Contains(t, view, "ada@example.com")
	assert.Contains(t, view, "processing")
	assert.Contains(t, view, "Intro")
}

func TestCloseRequestReachesAgent(t *testing.T) {
	t.Parallel()
	closed := make(chan struct{}, 1)
	b := testBus(t)
	m := New(Config{
		Bus:    b,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		CloseQuiz: func(context.Context) error {
			closed <- struct{}{}
			return nil
		},
	})

	_, cmd := apply(t, m, overlay.CloseRequestedMsg{})
	require.NotNil(t, cmd)
	cmd()
	select {
	case <-closed:
	default:
		t.Fatal("close request never reached the agent")
	}
}
