package domain

// PushEventType enumerates the events the backend delivers over the
// per-task push channel.
type PushEventType string

const (
	PushConnected    PushEventType = "connected"
	PushSegmentReady PushEventType = "segment_ready"
	PushProgress     PushEventType = "progress"
	PushCompleted    PushEventType = "completed"
	PushError        PushEventType = "error"
)

// PushEvent is one inbound push-channel event, already decoded. Exactly
// one of the optional fields is populated depending on Type.
type PushEvent struct {
	Type          PushEventType
	TaskID        TaskID
	Segment       *Segment
	Progress      float64
	CurrentStage  string
	Status        TaskStatus
	TotalSegments int
	Message       string
	Code          string
}
