package backend

import (
	"time"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// Wire types mirror the backend's snake_case JSON contract.

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (r tokenResponse) toDomain() domain.Session {
	return domain.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User: domain.User{
			ID:        domain.UserID(r.User.ID),
			Email:     r.User.Email,
			CreatedAt: r.User.CreatedAt,
		},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type videoRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

type checkResponse struct {
	Exists bool   `json:"exists"`
	TaskID string `json:"task_id"`
}

type uploadResponse struct {
	TaskID  string `json:"task_id"`
	Cached  bool   `json:"cached"`
	Message string `json:"message"`
}

type statusResponse struct {
	TaskID       string  `json:"task_id"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	CurrentStage string  `json:"current_stage"`
	ErrorMessage string  `json:"error_message"`
}

type quizPayload struct {
	ID           int64    `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	Type         string   `json:"type"`
	CorrectIndex *int     `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

type segmentPayload struct {
	ID         int64         `json:"id"`
	SegmentID  int           `json:"segment_id"`
	StartTime  float64       `json:"start_time"`
	EndTime    float64       `json:"end_time"`
	TopicTitle string        `json:"topic_title"`
	Summary    string        `json:"short_summary"`
	Keywords   []string      `json:"keywords"`
	Quizzes    []quizPayload `json:"quizzes"`
}

func (p segmentPayload) toDomain() domain.Segment {
	segment := domain.Segment{
		ID:         domain.SegmentID(p.ID),
		Number:     p.SegmentID,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		TopicTitle: p.TopicTitle,
		Summary:    p.Summary,
		Keywords:   p.Keywords,
	}
	for _, quiz := range p.Quizzes {
		correct := -1
		if quiz.CorrectIndex != nil {
			correct = *quiz.CorrectIndex
		}
		segment.Quizzes = append(segment.Quizzes, domain.Quiz{
			ID:           domain.QuizID(quiz.ID),
			Question:     quiz.Question,
			Options:      quiz.Options,
			Type:         quiz.Type,
			CorrectIndex: correct,
			Explanation:  quiz.Explanation,
		})
	}
	return segment
}

type segmentsResponse struct {
	TaskID        string           `json:"task_id"`
	Status        string           `json:"status"`
	TotalSegments int              `json:"total_segments"`
	Segments      []segmentPayload `json:"segments"`
}

type answerRequest struct {
	SelectedIndex int `json:"selected_index"`
}

type answerResponse struct {
	IsCorrect    bool   `json:"is_correct"`
	CorrectIndex int    `json:"correct_index"`
	Explanation  string `json:"explanation"`
	UserStats    struct {
		TotalAnswered int     `json:"total_answered"`
		TotalCorrect  int     `json:"total_correct"`
		Accuracy      float64 `json:"accuracy"`
	} `json:"user_stats"`
}

type reviewResponse struct {
	QuizID       int64     `json:"quiz_id"`
	Question     string    `json:"question"`
	Options      []string  `json:"options"`
	UserAnswer   int       `json:"user_answer"`
	CorrectIndex int       `json:"correct_answer"`
	IsCorrect    bool      `json:"is_correct"`
	AnsweredAt   time.Time `json:"answered_at"`
	Explanation  string    `json:"explanation"`
}

type segmentStatusResponse struct {
	SegmentID         int64   `json:"segment_id"`
	TotalQuestions    int     `json:"total_questions"`
	AnsweredQuestions int     `json:"answered_questions"`
	CorrectAnswers    int     `json:"correct_answers"`
	IsComplete        bool    `json:"is_complete"`
	ScorePercentage   float64 `json:"score_percentage"`
}

type retakeRequest struct {
	SegmentID int64 `json:"segment_id"`
}

type statsResponse struct {
	VideosWatched     int     `json:"videos_watched"`
	QuestionsAnswered int     `json:"questions_answered"`
	CorrectAnswers    int     `json:"correct_answers"`
	Accuracy          float64 `json:"accuracy"`
	CurrentStreak     int     `json:"current_streak"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
