package domain

type TaskID string

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

var taskStatusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusProcessing: 1,
	TaskStatusCompleted:  2,
}

// CanTransitionTo enforces forward-only task progression. Failed is
// reachable from any non-terminal status and is itself terminal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == TaskStatusFailed {
		return true
	}
	from, ok := taskStatusRank[s]
	if !ok {
		return false
	}
	to, ok := taskStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Task is one video's end-to-end processing job. At most one task is
// current per coordinator instance; starting a new video replaces it
// wholesale.
type Task struct {
	ID           TaskID
	Status       TaskStatus
	Progress     float64
	CurrentStage string
	VideoURL     string
	Language     string
	ErrorMessage string
}
