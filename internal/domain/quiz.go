package domain

import "time"

type QuizID int64

// Quiz is immutable once received. CorrectIndex is only populated in
// review responses; live quizzes carry -1 until answered.
type Quiz struct {
	ID           QuizID
	Question     string
	Options      []string
	Type         string
	CorrectIndex int
	Explanation  string
}

// AnswerRecord is the client-side cache of a submitted answer. The
// authoritative copy lives in the backend and is fetched via review.
type AnswerRecord struct {
	QuizID        QuizID
	SelectedIndex int
	IsCorrect     bool
	AnsweredAt    time.Time
}

// AnswerResult is the backend's verdict on a submitted answer.
type AnswerResult struct {
	IsCorrect    bool
	CorrectIndex int
	Explanation  string
	Stats        AnswerStats
}

// AnswerStats is the running user tally returned with every answer.
type AnswerStats struct {
	TotalAnswered int
	TotalCorrect  int
	Accuracy      float64
}

// ReviewItem is one previously-answered quiz as reported by the backend.
type ReviewItem struct {
	QuizID        QuizID
	Question      string
	Options       []string
	SelectedIndex int
	CorrectIndex  int
	IsCorrect     bool
	AnsweredAt    time.Time
	Explanation   string
}

// SegmentProgress summarises a user's answers within one segment.
type SegmentProgress struct {
	SegmentID         SegmentID
	TotalQuestions    int
	AnsweredQuestions int
	CorrectAnswers    int
	IsComplete        bool
	ScorePercentage   float64
}

type UserStats struct {
	VideosWatched     int
	QuestionsAnswered int
	CorrectAnswers    int
	Accuracy          float64
	CurrentStreak     int
}
