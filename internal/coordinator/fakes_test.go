package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

type fakeBackend struct {
	mu sync.Mutex

	loginFunc   func(email, password string) (domain.Session, error)
	refreshFunc func(refreshToken string) (domain.Session, error)
	checkFunc   func(url, language string) (ports.CheckResult, error)
	uploadFunc  func(url, language string) (ports.UploadResult, error)
	statusFunc  func(id domain.TaskID) (domain.Task, error)
	segments    func(id domain.TaskID) (ports.SegmentsResult, error)
	answerFunc  func(id domain.QuizID, index int) (domain.AnswerResult, error)
	reviewFunc  func(id domain.SegmentID) ([]domain.ReviewItem, error)

	statusCalls int
	checkCalls  int
	uploadCalls int
}

var _ ports.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Login(_ context.Context, email, password string) (domain.Session, error) {
	if f.loginFunc == nil {
		return domain.Session{AccessToken: "access", RefreshToken: "refresh"}, nil
	}
	return f.loginFunc(email, password)
}

func (f *fakeBackend) Register(ctx context.Context, email, password string) (domain.Session, error) {
	return f.Login(ctx, email, password)
}

func (f *fakeBackend) Refresh(_ context.Context, refreshToken string) (domain.Session, error) {
	if f.refreshFunc == nil {
		return domain.Session{}, domain.ErrUnauthorized
	}
	return f.refreshFunc(refreshToken)
}

func (f *fakeBackend) CheckVideo(_ context.Context, url, language string) (ports.CheckResult, error) {
	f.mu.Lock()
	f.checkCalls++
	f.mu.Unlock()
	if f.checkFunc == nil {
		return ports.CheckResult{}, nil
	}
	return f.checkFunc(url, language)
}

func (f *fakeBackend) UploadVideo(_ context.Context, url, language string) (ports.UploadResult, error) {
	f.mu.Lock()
	f.uploadCalls++
	f.mu.Unlock()
	if f.uploadFunc == nil {
		return ports.UploadResult{TaskID: "task-1"}, nil
	}
	return f.uploadFunc(url, language)
}

func (f *fakeBackend) TaskStatus(_ context.Context, id domain.TaskID) (domain.Task, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.statusFunc == nil {
		return domain.Task{ID: id, Status: domain.TaskStatusProcessing}, nil
	}
	return f.statusFunc(id)
}

func (f *fakeBackend) Segments(_ context.Context, id domain.TaskID) (ports.SegmentsResult, error) {
	if f.segments == nil {
		return ports.SegmentsResult{TaskID: id, Status: domain.TaskStatusProcessing}, nil
	}
	return f.segments(id)
}

func (f *fakeBackend) SubmitAnswer(_ context.Context, id domain.QuizID, index int) (domain.AnswerResult, error) {
	if f.answerFunc == nil {
		return domain.AnswerResult{IsCorrect: true, CorrectIndex: index}, nil
	}
	return f.answerFunc(id, index)
}

func (f *fakeBackend) SegmentReview(_ context.Context, id domain.SegmentID) ([]domain.ReviewItem, error) {
	if f.reviewFunc == nil {
		return nil, nil
	}
	return f.reviewFunc(id)
}

func (f *fakeBackend) SegmentProgress(_ context.Context, id domain.SegmentID) (domain.SegmentProgress, error) {
	return domain.SegmentProgress{SegmentID: id}, nil
}

func (f *fakeBackend) RetakeSegment(context.Context, domain.SegmentID) error {
	return nil
}

func (f *fakeBackend) UserStats(context.Context) (domain.UserStats, error) {
	return domain.UserStats{}, nil
}

type fakeConn struct {
	events chan domain.PushEvent

	mu          sync.Mutex
	closed      bool
	closeReason error
}

var _ ports.PushConn = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan domain.PushEvent, 16)}
}

func (f *fakeConn) Events() <-chan domain.PushEvent { return f.events }

func (f *fakeConn) Ping(context.Context) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// dropRemote simulates the server side closing the socket.
func (f *fakeConn) dropRemote(reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.closeReason = reason
		close(f.events)
	}
}

func (f *fakeConn) CloseReason() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeReason
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
}

var _ ports.PushDialer = (*fakeDialer)(nil)

func (f *fakeDialer) Dial(_ context.Context, _ string, _ domain.TaskID, _ string) (ports.PushConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	conn := newFakeConn()
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeDialer) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type memoryStates struct {
	mu    sync.Mutex
	state domain.LocalState
	saves int
}

var _ ports.StateRepository = (*memoryStates)(nil)

func (m *memoryStates) Load(context.Context) (domain.LocalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *memoryStates) Save(_ context.Context, state domain.LocalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	m.saves++
	return nil
}

func (m *memoryStates) current() domain.LocalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

type fixedClock struct {
	at time.Time
}

func (f fixedClock) Now() time.Time { return f.at }
