package domain

import "time"

type SegmentID int64

// Segment is a topic-scoped time interval of a task. Times are whole
// seconds of playback position.
type Segment struct {
	ID         SegmentID
	Number     int
	StartTime  float64
	EndTime    float64
	TopicTitle string
	Summary    string
	Keywords   []string
	Quizzes    []Quiz
}

// Contains reports whether the playback position t falls inside the
// segment's [StartTime, EndTime] interval.
func (s Segment) Contains(t float64) bool {
	return t >= s.StartTime && t <= s.EndTime
}

// AutoOpenWindow is the interval around the segment's end during which
// the quiz overlay is triggered automatically:
// [max(start, end-early), end+late].
func (s Segment) AutoOpenWindow(early, late time.Duration) (from, to float64) {
	from = s.EndTime - early.Seconds()
	if from < s.StartTime {
		from = s.StartTime
	}
	return from, s.EndTime + late.Seconds()
}

// SegmentList is the arrival-ordered segment sequence for a task. The
// backend may deliver segments out of time order; the list is append-only
// and never reordered or deduplicated.
type SegmentList struct {
	segments []Segment
}

func NewSegmentList(segments ...Segment) SegmentList {
	list := SegmentList{}
	for _, segment := range segments {
		list.Append(segment)
	}
	return list
}

func (l *SegmentList) Append(segment Segment) {
	l.segments = append(l.segments, segment)
}

func (l *SegmentList) Len() int {
	return len(l.segments)
}

// All returns a copy of the sequence in receipt order.
func (l *SegmentList) All() []Segment {
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// ByID returns the first segment with the given id.
func (l *SegmentList) ByID(id SegmentID) (Segment, bool) {
	for _, segment := range l.segments {
		if segment.ID == id {
			return segment, true
		}
	}
	return Segment{}, false
}

// ActiveAt returns the first segment whose interval contains t. Segments
// are not expected to overlap, but first-match keeps overlap harmless.
func (l *SegmentList) ActiveAt(t float64) (Segment, bool) {
	for _, segment := range l.segments {
		if segment.Contains(t) {
			return segment, true
		}
	}
	return Segment{}, false
}
