package ports

import (
	"context"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// StateRepository persists the coordinator's durable state across
// process restarts. Load on a fresh install returns a zero state with
// defaults applied, not an error.
type StateRepository interface {
	Load(ctx context.Context) (domain.LocalState, error)
	Save(ctx context.Context, state domain.LocalState) error
}
