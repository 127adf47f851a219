package ports

import (
	"context"
	"net/http"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// Doer executes a single HTTP request. The coordinator injects its auth
// transport here so every backend call passes through the bearer-token
// and refresh-once policy.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CheckResult is the backend's answer to "is this video already known".
type CheckResult struct {
	Exists bool
	TaskID domain.TaskID
}

// UploadResult identifies the task created (or reused) for a video.
type UploadResult struct {
	TaskID  domain.TaskID
	Cached  bool
	Message string
}

// SegmentsResult is a pull snapshot of a task's segments.
type SegmentsResult struct {
	TaskID   domain.TaskID
	Status   domain.TaskStatus
	Segments []domain.Segment
}

// Backend is the REST contract of the video-quiz service. Auth endpoints
// are unauthenticated; everything else goes through the injected Doer.
type Backend interface {
	Register(ctx context.Context, email, password string) (domain.Session, error)
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Session, error)

	CheckVideo(ctx context.Context, url, language string) (CheckResult, error)
	UploadVideo(ctx context.Context, url, language string) (UploadResult, error)
	TaskStatus(ctx context.Context, id domain.TaskID) (domain.Task, error)
	Segments(ctx context.Context, id domain.TaskID) (SegmentsResult, error)

	SubmitAnswer(ctx context.Context, id domain.QuizID, selectedIndex int) (domain.AnswerResult, error)
	SegmentReview(ctx context.Context, id domain.SegmentID) ([]domain.ReviewItem, error)
	SegmentProgress(ctx context.Context, id domain.SegmentID) (domain.SegmentProgress, error)
	RetakeSegment(ctx context.Context, id domain.SegmentID) error

	UserStats(ctx context.Context) (domain.UserStats, error)
}
