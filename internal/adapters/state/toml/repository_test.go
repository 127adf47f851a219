package toml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	statePath := filepath.Join(t.TempDir(), "state.toml")
	config := viper.New()
	config.Set("state.path", statePath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	answeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := domain.LocalState{
		Session: domain.Session{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User: domain.User{
				ID:        7,
				Email:     "viewer@example.com",
				CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			},
		},
		Settings: domain.Settings{
			Endpoint: "http://localhost:8000",
			Language: "ru",
			Enabled:  true,
		},
		CurrentTaskID: "task-1",
		VideoURL:      "https://youtu.be/abc",
		Segments: map[domain.TaskID][]domain.Segment{
			"task-1": {
				{
					ID:         11,
					Number:     1,
					StartTime:  0,
					EndTime:    30,
					TopicTitle: "Intro",
					Summary:    "Opening remarks",
					Keywords:   []string{"intro", "overview"},
					Quizzes: []domain.Quiz{
						{
							ID:           101,
							Question:     "What is covered first?",
							Options:      []string{"Intro", "Outro"},
							Type:         "multiple_choice",
							CorrectIndex: 0,
						},
					},
				},
			},
		},
		Answers: map[domain.QuizID]domain.AnswerRecord{
			101: {QuizID: 101, SelectedIndex: 0, IsCorrect: true, AnsweredAt: answeredAt},
		},
	}

	require.NoError(t, repo.Save(context.Background(), state))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestRepositoryLoadFreshInstall(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	state, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Session.AccessToken)
	assert.Equal(t, "en", state.Settings.Language)
	assert.Empty(t, state.CurrentTaskID)
}

func TestRepositorySavePreservesArrivalOrder(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	// Segments arrive out of time order; persistence must not sort them.
	state := domain.LocalState{
		Segments: map[domain.TaskID][]domain.Segment{
			"task-1": {
				{ID: 2, StartTime: 30, EndTime: 90},
				{ID: 1, StartTime: 0, EndTime: 30},
			},
		},
	}
	require.NoError(t, repo.Save(context.Background(), state))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Segments["task-1"], 2)
	assert.Equal(t, domain.SegmentID(2), got.Segments["task-1"][0].ID)
	assert.Equal(t, domain.SegmentID(1), got.Segments["task-1"][1].ID)
}

func TestRepositoryFileModeIsPrivate(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	require.NoError(t, repo.Save(context.Background(), domain.LocalState{}))

	info, err := os.Stat(repo.statePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "state.toml")
	config := viper.New()
	config.Set("state.path", statePath)

	repo, err := NewRepository(config)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(statePath, []byte("version = 99\n"), 0o600))

	_, err = repo.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported state schema version")
}
