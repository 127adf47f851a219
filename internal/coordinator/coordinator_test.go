package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

const eventTimeout = 2 * time.Second

type harness struct {
	t       *testing.T
	bus     *bus.Bus
	backend *fakeBackend
	dialer  *fakeDialer
	states  *memoryStates
	events  <-chan bus.Event
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		t:       t,
		bus:     bus.New(logger),
		backend: &fakeBackend{},
		dialer:  &fakeDialer{},
		states:  &memoryStates{},
		done:    make(chan struct{}),
	}

	events, unsubscribe := h.bus.Subscribe(128)
	h.events = events
	t.Cleanup(unsubscribe)

	coordinator := New(Config{
		Bus:               h.bus,
		Backend:           h.backend,
		Dialer:            h.dialer,
		States:            h.states,
		Logger:            logger,
		ReconnectDelay:    15 * time.Millisecond,
		KeepAliveInterval: time.Hour,
		CompletionLinger:  150 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = coordinator.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) request(topic string, payload any) (any, error) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	return h.bus.Request(ctx, topic, payload)
}

// waitEvent discards broadcasts until one matches topic and accept (nil
// accept matches any payload on the topic).
func (h *harness) waitEvent(topic string, accept func(bus.Event) bool) bus.Event {
	h.t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case event := <-h.events:
			if event.Topic != topic {
				continue
			}
			if accept != nil && !accept(event) {
				continue
			}
			return event
		case <-deadline:
			h.t.Fatalf("timed out waiting for broadcast %q", topic)
			return bus.Event{}
		}
	}
}

func (h *harness) snapshot() bus.Snapshot {
	h.t.Helper()
	payload, err := h.request(bus.TopicStateSnapshot, nil)
	require.NoError(h.t, err)
	return payload.(bus.Snapshot)
}

// startTask drives check-or-upload for an already-known video and waits
// for the push connection to open.
func (h *harness) startTask(url string) domain.Task {
	h.t.Helper()
	payload, err := h.request(bus.TopicVideoCheckOrUpload, bus.CheckOrUpload{URL: url})
	require.NoError(h.t, err)
	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnOpen
	})
	return payload.(domain.Task)
}

func knownVideo(taskID domain.TaskID) func(url, language string) (ports.CheckResult, error) {
	return func(string, string) (ports.CheckResult, error) {
		return ports.CheckResult{Exists: true, TaskID: taskID}, nil
	}
}

func TestLoginPersistsAndBroadcasts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.loginFunc = func(email, password string) (domain.Session, error) {
		require.Equal(t, "ada@example.com", email)
		return domain.Session{AccessToken: "at", RefreshToken: "rt"}, nil
	}

	payload, err := h.request(bus.TopicAuthLogin, bus.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	session := payload.(domain.Session)
	assert.Equal(t, "at", session.AccessToken)

	h.waitEvent(bus.EventSessionChanged, nil)
	assert.Equal(t, "rt", h.states.current().Session.RefreshToken)
}

func TestLoginRejectionMapsToAuthError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.loginFunc = func(string, string) (domain.Session, error) {
		return domain.Session{}, &domain.BackendError{Message: "Incorrect email or password"}
	}

	_, err := h.request(bus.TopicAuthLogin, bus.Credentials{Email: "ada@example.com", Password: "nope"})
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Incorrect email or password", authErr.Message)
}

func TestCheckOrUploadBindsTaskAndOpensConnection(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")

	task := h.startTask("https://youtu.be/abc")
	assert.Equal(t, domain.TaskID("task-1"), task.ID)
	assert.Equal(t, 1, h.dialer.dialCount())
	assert.Equal(t, 0, h.backend.uploadCalls)

	state := h.states.current()
	assert.Equal(t, domain.TaskID("task-1"), state.CurrentTaskID)
	assert.Equal(t, "https://youtu.be/abc", state.VideoURL)
}

func TestCheckOrUploadUnknownVideoUploads(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = func(string, string) (ports.CheckResult, error) {
		return ports.CheckResult{Exists: false}, nil
	}
	h.backend.uploadFunc = func(url, language string) (ports.UploadResult, error) {
		assert.Equal(t, "en", language)
		return ports.UploadResult{TaskID: "task-new"}, nil
	}

	task := h.startTask("https://youtu.be/new")
	assert.Equal(t, domain.TaskID("task-new"), task.ID)
	assert.Equal(t, 1, h.backend.uploadCalls)
}

func TestSameVideoTwiceKeepsOneConnection(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")

	first := h.startTask("https://youtu.be/abc")

	payload, err := h.request(bus.TopicVideoCheckOrUpload, bus.CheckOrUpload{URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	second := payload.(domain.Task)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	_, err := h.request(bus.TopicConnConnect, bus.Connect{TaskID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestConnectSkipsDialForFinishedTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.statusFunc = func(id domain.TaskID) (domain.Task, error) {
		return domain.Task{ID: id, Status: domain.TaskStatusCompleted}, nil
	}

	_, err := h.request(bus.TopicConnConnect, bus.Connect{TaskID: "task-done"})
	require.NoError(t, err)
	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnClosed
	})
	assert.Equal(t, 0, h.dialer.dialCount())
}

func TestRemoteCloseReconnectsAfterProbe(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	h.dialer.lastConn().dropRemote(errors.New("connection reset"))

	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnReconnecting
	})
	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnOpen
	})
	assert.Equal(t, 2, h.dialer.dialCount())
}

func TestRemoteCloseOfFinishedTaskDoesNotReconnect(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")

	var finished sync.Map
	h.backend.statusFunc = func(id domain.TaskID) (domain.Task, error) {
		if _, ok := finished.Load(id); ok {
			return domain.Task{ID: id, Status: domain.TaskStatusCompleted}, nil
		}
		return domain.Task{ID: id, Status: domain.TaskStatusProcessing}, nil
	}

	h.startTask("https://youtu.be/abc")
	dials := h.dialer.dialCount()

	finished.Store(domain.TaskID("task-1"), struct{}{})
	h.dialer.lastConn().dropRemote(errors.New("gone"))

	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnClosed
	})
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, dials, h.dialer.dialCount())
}

func TestSegmentReadyAppendsBeforeBroadcast(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	conn := h.dialer.lastConn()
	// Deliberately out of numeric order: receipt order must win.
	conn.events <- domain.PushEvent{
		Type:    domain.PushSegmentReady,
		Segment: &domain.Segment{ID: 2, Number: 2, StartTime: 30, EndTime: 60},
	}
	conn.events <- domain.PushEvent{
		Type:    domain.PushSegmentReady,
		Segment: &domain.Segment{ID: 1, Number: 1, StartTime: 0, EndTime: 30},
	}

	h.waitEvent(bus.EventSegmentReady, func(event bus.Event) bool {
		return event.Payload.(bus.SegmentReady).Segment.ID == 1
	})

	// A snapshot taken right after the broadcast must already hold the
	// announced segment, in arrival order.
	snapshot := h.snapshot()
	require.Len(t, snapshot.Segments, 2)
	assert.Equal(t, domain.SegmentID(2), snapshot.Segments[0].ID)
	assert.Equal(t, domain.SegmentID(1), snapshot.Segments[1].ID)
}

func TestCompletedLingersThenCloses(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	h.dialer.lastConn().events <- domain.PushEvent{Type: domain.PushCompleted, TotalSegments: 4}

	h.waitEvent(bus.EventCompleted, nil)
	snapshot := h.snapshot()
	assert.Equal(t, domain.TaskStatusCompleted, snapshot.Task.Status)
	assert.Equal(t, float64(100), snapshot.Task.Progress)
	// Socket stays up through the linger window for trailing events.
	assert.Equal(t, domain.ConnOpen, snapshot.Connection.State)

	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnClosed
	})
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestPushErrorIsTerminal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	h.dialer.lastConn().events <- domain.PushEvent{
		Type:    domain.PushError,
		Message: "transcription failed",
		Code:    "ASR_FAILURE",
	}

	failure := h.waitEvent(bus.EventTaskError, nil)
	assert.Equal(t, "transcription failed", failure.Payload.(bus.TaskFailed).Message)

	h.waitEvent(bus.EventConnState, func(event bus.Event) bool {
		return event.Payload.(bus.ConnChange).State == domain.ConnClosed
	})
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.dialCount())

	snapshot := h.snapshot()
	assert.Equal(t, domain.TaskStatusFailed, snapshot.Task.Status)
	assert.Equal(t, "transcription failed", snapshot.Task.ErrorMessage)
}

func TestProgressIsForwardOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	conn := h.dialer.lastConn()
	conn.events <- domain.PushEvent{Type: domain.PushProgress, Progress: 40, CurrentStage: "quiz_generation"}
	h.waitEvent(bus.EventProgress, nil)

	// A stale pending probe must not roll the task back.
	h.backend.statusFunc = func(id domain.TaskID) (domain.Task, error) {
		return domain.Task{ID: id, Status: domain.TaskStatusPending}, nil
	}
	payload, err := h.request(bus.TopicVideoStatus, bus.TaskRef{})
	require.NoError(t, err)

	task := payload.(domain.Task)
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Equal(t, float64(40), task.Progress)
	assert.Equal(t, "quiz_generation", task.CurrentStage)
}

func TestSegmentsPullMergesWithoutReordering(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	conn := h.dialer.lastConn()
	conn.events <- domain.PushEvent{
		Type:    domain.PushSegmentReady,
		Segment: &domain.Segment{ID: 2, Number: 2},
	}
	h.waitEvent(bus.EventSegmentReady, nil)

	h.backend.segments = func(id domain.TaskID) (ports.SegmentsResult, error) {
		return ports.SegmentsResult{
			TaskID: id,
			Status: domain.TaskStatusProcessing,
			Segments: []domain.Segment{
				{ID: 1, Number: 1},
				{ID: 2, Number: 2},
			},
		}, nil
	}

	payload, err := h.request(bus.TopicVideoSegments, bus.TaskRef{})
	require.NoError(t, err)
	result := payload.(ports.SegmentsResult)

	// segment 2 arrived first over push and keeps its slot; only the unseen
	// segment 1 is appended.
	require.Len(t, result.Segments, 2)
	assert.Equal(t, domain.SegmentID(2), result.Segments[0].ID)
	assert.Equal(t, domain.SegmentID(1), result.Segments[1].ID)
}

func TestSegmentsPullServesCacheWhenBackendDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")
	h.startTask("https://youtu.be/abc")

	conn := h.dialer.lastConn()
	conn.events <- domain.PushEvent{
		Type:    domain.PushSegmentReady,
		Segment: &domain.Segment{ID: 1, Number: 1},
	}
	h.waitEvent(bus.EventSegmentReady, nil)

	h.backend.segments = func(domain.TaskID) (ports.SegmentsResult, error) {
		return ports.SegmentsResult{}, &domain.NetworkError{Op: "segments", Err: errors.New("dial tcp: refused")}
	}

	payload, err := h.request(bus.TopicVideoSegments, bus.TaskRef{})
	require.NoError(t, err)
	result := payload.(ports.SegmentsResult)
	require.Len(t, result.Segments, 1)
	assert.Equal(t, domain.SegmentID(1), result.Segments[0].ID)
}

func TestAnswerIsCached(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.answerFunc = func(id domain.QuizID, index int) (domain.AnswerResult, error) {
		return domain.AnswerResult{IsCorrect: false, CorrectIndex: 2, Explanation: "see 02:10"}, nil
	}

	payload, err := h.request(bus.TopicQuizAnswer, bus.SubmitAnswer{QuizID: 7, SelectedIndex: 1})
	require.NoError(t, err)
	result := payload.(domain.AnswerResult)
	assert.False(t, result.IsCorrect)
	assert.Equal(t, 2, result.CorrectIndex)

	record, ok := h.states.current().Answers[7]
	require.True(t, ok)
	assert.Equal(t, 1, record.SelectedIndex)
	assert.False(t, record.IsCorrect)
}

func TestLogoutClearsSessionAndConnection(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.checkFunc = knownVideo("task-1")

	_, err := h.request(bus.TopicAuthLogin, bus.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	h.startTask("https://youtu.be/abc")

	_, err = h.request(bus.TopicAuthLogout, nil)
	require.NoError(t, err)

	h.waitEvent(bus.EventSessionChanged, func(event bus.Event) bool {
		return !event.Payload.(domain.Session).Authenticated()
	})
	assert.Empty(t, h.states.current().Session.AccessToken)

	snapshot := h.snapshot()
	assert.Equal(t, domain.ConnClosed, snapshot.Connection.State)
}

func TestConfigSetPersistsBeforeAck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	payload, err := h.request(bus.TopicConfigSet, domain.Settings{Language: "de"})
	require.NoError(t, err)
	settings := payload.(domain.Settings)
	assert.Equal(t, "de", settings.Language)

	// The ack implies durability: the repository already holds it.
	assert.Equal(t, "de", h.states.current().Settings.Language)

	h.waitEvent(bus.EventSettings, nil)

	payload, err = h.request(bus.TopicConfigGet, nil)
	require.NoError(t, err)
	assert.Equal(t, "de", payload.(domain.Settings).Language)
}

func TestStatusWithoutTaskFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.request(bus.TopicVideoStatus, bus.TaskRef{})
	assert.ErrorIs(t, err, domain.ErrNoCurrentTask)
}
