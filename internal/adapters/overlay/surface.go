package overlay

import (
	"context"
	"sync"

	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

// Surface is the agent-facing side of the overlay. It tracks what is
// showing; the hosting program learns about opens and closes from the
// agent's broadcasts and builds its Model from their payloads.
type Surface struct {
	mu      sync.Mutex
	visible bool
	segment domain.Segment
	review  []domain.ReviewItem
}

var _ ports.QuizOverlay = (*Surface)(nil)

func NewSurface() *Surface {
	return &Surface{}
}

func (s *Surface) Open(_ context.Context, segment domain.Segment, review []domain.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
	s.segment = segment
	s.review = review
	return nil
}

func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
	s.segment = domain.Segment{}
	s.review = nil
}

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Current returns what is showing, for hosts that rebuild their view
// from state instead of broadcasts.
func (s *Surface) Current() (domain.Segment, []domain.ReviewItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment, s.review, s.visible
}
