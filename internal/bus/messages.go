package bus

import "github.com/karatal/video-quiz-cli/internal/domain"

// Request topics owned by the coordinator.
const (
	TopicAuthLogin    = "auth:login"
	TopicAuthRegister = "auth:register"
	TopicAuthLogout   = "auth:logout"

	TopicVideoCheckOrUpload = "video:check-or-upload"
	TopicVideoStatus        = "video:status"
	TopicVideoSegments      = "video:segments"

	TopicConnConnect    = "conn:connect"
	TopicConnDisconnect = "conn:disconnect"

	TopicQuizAnswer   = "quiz:answer"
	TopicQuizReview   = "quiz:review"
	TopicQuizProgress = "quiz:progress"
	TopicQuizRetake   = "quiz:retake"

	TopicUserStats = "user:stats"

	TopicConfigGet = "config:get"
	TopicConfigSet = "config:set"

	TopicStateSnapshot = "state:snapshot"
)

// Broadcast topics.
const (
	EventSessionChanged = "session:changed"
	EventTaskChanged    = "task:changed"
	EventConnState      = "conn:state"
	EventSegmentReady   = "segment:ready"
	EventProgress       = "task:progress"
	EventCompleted      = "task:completed"
	EventTaskError      = "task:error"
	EventSettings       = "settings:changed"
	EventAffordance     = "agent:affordance"
	EventOverlay        = "agent:overlay"
)

type Credentials struct {
	Email    string
	Password string
}

type CheckOrUpload struct {
	URL      string
	Language string
}

type Connect struct {
	TaskID domain.TaskID
}

type TaskRef struct {
	TaskID domain.TaskID
}

type SubmitAnswer struct {
	QuizID        domain.QuizID
	SelectedIndex int
}

type SegmentRef struct {
	SegmentID domain.SegmentID
}

// Snapshot is the coordinator's read-only state as served to consumers.
// A snapshot taken immediately after receiving a broadcast reflects the
// cache mutation that preceded that broadcast.
type Snapshot struct {
	Session    domain.Session
	Settings   domain.Settings
	Task       domain.Task
	Connection domain.ConnectionStatus
	Segments   []domain.Segment
	Answers    map[domain.QuizID]domain.AnswerRecord
}

// SegmentReady is broadcast after a segment has been appended to the
// coordinator's cache.
type SegmentReady struct {
	TaskID  domain.TaskID
	Segment domain.Segment
	Total   int
}

// Progress mirrors the backend progress event.
type Progress struct {
	TaskID       domain.TaskID
	Progress     float64
	CurrentStage string
	Status       domain.TaskStatus
}

// Completed marks the end of a task's processing.
type Completed struct {
	TaskID        domain.TaskID
	TotalSegments int
}

// TaskFailed carries the backend's terminal error for a task.
type TaskFailed struct {
	TaskID  domain.TaskID
	Message string
	Code    string
}

// ConnChange announces a connection state transition.
type ConnChange struct {
	TaskID domain.TaskID
	State  domain.ConnectionState
}

// Affordance announces whether the quiz entry point should be shown,
// and for which segment. Broadcast only on change.
type Affordance struct {
	SegmentID domain.SegmentID
	Visible   bool
}

// Overlay announces the quiz overlay opening or closing. Open events
// carry the segment and its review so the rendering surface needs no
// further fetches.
type Overlay struct {
	SegmentID domain.SegmentID
	Visible   bool
	Auto      bool
	Segment   domain.Segment
	Review    []domain.ReviewItem
}
