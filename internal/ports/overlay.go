package ports

import (
	"context"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// QuizOverlay is the surface that presents a segment's quizzes. Open
// replaces any overlay already showing; review entries tell it which
// quizzes were answered before so they render disabled.
type QuizOverlay interface {
	Open(ctx context.Context, segment domain.Segment, review []domain.ReviewItem) error
	Close()
	Visible() bool
}
