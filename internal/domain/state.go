package domain

// DefaultEndpoint is the backend base URL used until a config write
// overrides it.
const DefaultEndpoint = "http://localhost:8000"

// Settings is the user-tunable configuration persisted locally and
// mutated only through an acknowledged config write.
type Settings struct {
	Endpoint string
	Language string
	Enabled  bool
}

// LocalState is the minimum durable state needed to resume a session and
// reattach to an in-flight task after a restart. The cached task status
// may be stale; resume always re-probes before reopening a push
// connection.
type LocalState struct {
	Session       Session
	Settings      Settings
	CurrentTaskID TaskID
	VideoURL      string
	Segments      map[TaskID][]Segment
	Answers       map[QuizID]AnswerRecord
}

func (s LocalState) Clone() LocalState {
	out := s
	out.Segments = make(map[TaskID][]Segment, len(s.Segments))
	for id, segments := range s.Segments {
		copied := make([]Segment, len(segments))
		copy(copied, segments)
		out.Segments[id] = copied
	}
	out.Answers = make(map[QuizID]AnswerRecord, len(s.Answers))
	for id, record := range s.Answers {
		out.Answers[id] = record
	}
	return out
}
