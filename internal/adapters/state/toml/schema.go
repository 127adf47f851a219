package toml

import (
	"fmt"
	"time"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int                        `toml:"version"`
	Session  sessionSchema              `toml:"session"`
	Settings settingsSchema             `toml:"settings"`
	Task     taskRefSchema              `toml:"task"`
	Segments map[string][]segmentSchema `toml:"segments,omitempty"`
	Answers  []answerSchema             `toml:"answers,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
	if s.Settings.Language == "" {
		s.Settings.Language = "en"
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported state schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type sessionSchema struct {
	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	UserID       int64  `toml:"user_id,omitempty"`
	Email        string `toml:"email,omitempty"`
	CreatedAt    string `toml:"created_at,omitempty"`
}

type settingsSchema struct {
	Endpoint string `toml:"endpoint,omitempty"`
	Language string `toml:"language"`
	Enabled  bool   `toml:"enabled"`
}

type taskRefSchema struct {
	ID       string `toml:"id,omitempty"`
	VideoURL string `toml:"video_url,omitempty"`
}

type segmentSchema struct {
	ID         int64        `toml:"id"`
	Number     int          `toml:"number"`
	StartTime  float64      `toml:"start_time"`
	EndTime    float64      `toml:"end_time"`
	TopicTitle string       `toml:"topic_title,omitempty"`
	Summary    string       `toml:"summary,omitempty"`
	Keywords   []string     `toml:"keywords,omitempty"`
	Quizzes    []quizSchema `toml:"quizzes,omitempty"`
}

type quizSchema struct {
	ID           int64    `toml:"id"`
	Question     string   `toml:"question"`
	Options      []string `toml:"options"`
	Type         string   `toml:"type,omitempty"`
	CorrectIndex int      `toml:"correct_index"`
	Explanation  string   `toml:"explanation,omitempty"`
}

type answerSchema struct {
	QuizID        int64  `toml:"quiz_id"`
	SelectedIndex int    `toml:"selected_index"`
	IsCorrect     bool   `toml:"is_correct"`
	AnsweredAt    string `toml:"answered_at"`
}

func toSchema(state domain.LocalState) fileSchema {
	file := fileSchema{
		Version: currentSchemaVersion,
		Session: sessionSchema{
			AccessToken:  state.Session.AccessToken,
			RefreshToken: state.Session.RefreshToken,
			UserID:       int64(state.Session.User.ID),
			Email:        state.Session.User.Email,
		},
		Settings: settingsSchema{
			Endpoint: state.Settings.Endpoint,
			Language: state.Settings.Language,
			Enabled:  state.Settings.Enabled,
		},
		Task: taskRefSchema{
			ID:       string(state.CurrentTaskID),
			VideoURL: state.VideoURL,
		},
	}
	if !state.Session.User.CreatedAt.IsZero() {
		file.Session.CreatedAt = state.Session.User.CreatedAt.Format(time.RFC3339)
	}

	if len(state.Segments) > 0 {
		file.Segments = make(map[string][]segmentSchema, len(state.Segments))
		for taskID, segments := range state.Segments {
			encoded := make([]segmentSchema, 0, len(segments))
			for _, segment := range segments {
				encoded = append(encoded, segmentToSchema(segment))
			}
			file.Segments[string(taskID)] = encoded
		}
	}

	for _, record := range state.Answers {
		file.Answers = append(file.Answers, answerSchema{
			QuizID:        int64(record.QuizID),
			SelectedIndex: record.SelectedIndex,
			IsCorrect:     record.IsCorrect,
			AnsweredAt:    record.AnsweredAt.Format(time.RFC3339),
		})
	}

	return file
}

func fromSchema(file fileSchema) domain.LocalState {
	state := domain.LocalState{
		Session: domain.Session{
			AccessToken:  file.Session.AccessToken,
			RefreshToken: file.Session.RefreshToken,
			User: domain.User{
				ID:    domain.UserID(file.Session.UserID),
				Email: file.Session.Email,
			},
		},
		Settings: domain.Settings{
			Endpoint: file.Settings.Endpoint,
			Language: file.Settings.Language,
			Enabled:  file.Settings.Enabled,
		},
		CurrentTaskID: domain.TaskID(file.Task.ID),
		VideoURL:      file.Task.VideoURL,
		Segments:      make(map[domain.TaskID][]domain.Segment, len(file.Segments)),
		Answers:       make(map[domain.QuizID]domain.AnswerRecord, len(file.Answers)),
	}
	if file.Session.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, file.Session.CreatedAt); err == nil {
			state.Session.User.CreatedAt = parsed
		}
	}

	for taskID, segments := range file.Segments {
		decoded := make([]domain.Segment, 0, len(segments))
		for _, segment := range segments {
			decoded = append(decoded, segmentFromSchema(segment))
		}
		state.Segments[domain.TaskID(taskID)] = decoded
	}

	for _, answer := range file.Answers {
		record := domain.AnswerRecord{
			QuizID:        domain.QuizID(answer.QuizID),
			SelectedIndex: answer.SelectedIndex,
			IsCorrect:     answer.IsCorrect,
		}
		if answer.AnsweredAt != "" {
			if parsed, err := time.Parse(time.RFC3339, answer.AnsweredAt); err == nil {
				record.AnsweredAt = parsed
			}
		}
		state.Answers[record.QuizID] = record
	}

	return state
}

func segmentToSchema(segment domain.Segment) segmentSchema {
	encoded := segmentSchema{
		ID:         int64(segment.ID),
		Number:     segment.Number,
		StartTime:  segment.StartTime,
		EndTime:    segment.EndTime,
		TopicTitle: segment.TopicTitle,
		Summary:    segment.Summary,
		Keywords:   segment.Keywords,
	}
	for _, quiz := range segment.Quizzes {
		encoded.Quizzes = append(encoded.Quizzes, quizSchema{
			ID:           int64(quiz.ID),
			Question:     quiz.Question,
			Options:      quiz.Options,
			Type:         quiz.Type,
			CorrectIndex: quiz.CorrectIndex,
			Explanation:  quiz.Explanation,
		})
	}
	return encoded
}

func segmentFromSchema(segment segmentSchema) domain.Segment {
	decoded := domain.Segment{
		ID:         domain.SegmentID(segment.ID),
		Number:     segment.Number,
		StartTime:  segment.StartTime,
		EndTime:    segment.EndTime,
		TopicTitle: segment.TopicTitle,
		Summary:    segment.Summary,
		Keywords:   segment.Keywords,
	}
	for _, quiz := range segment.Quizzes {
		decoded.Quizzes = append(decoded.Quizzes, domain.Quiz{
			ID:           domain.QuizID(quiz.ID),
			Question:     quiz.Question,
			Options:      quiz.Options,
			Type:         quiz.Type,
			CorrectIndex: quiz.CorrectIndex,
			Explanation:  quiz.Explanation,
		})
	}
	return decoded
}
