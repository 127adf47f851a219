package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// Report is one command's worth of output. Only the populated sections
// render; commands set exactly the fields they fetched.
type Report struct {
	Task     *domain.Task
	Segments []domain.Segment
	// SegmentsTotal is the backend's segment count for the task, which
	// can run ahead of the cached slice during processing.
	SegmentsTotal int
	Review        []domain.ReviewItem
	ReviewSegment domain.SegmentID
	Answer        *domain.AnswerResult
	Stats         *domain.UserStats
	Settings      *domain.Settings
}

func renderView(r Report, s styles) string {
	sections := make([]string, 0, 4)

	if r.Task != nil {
		sections = append(sections, renderTask(*r.Task, s))
	}
	if r.Segments != nil {
		sections = append(sections, renderSegments(r.Segments, r.SegmentsTotal, s))
	}
	if r.Review != nil || r.ReviewSegment != 0 {
		sections = append(sections, renderReview(r.ReviewSegment, r.Review, s))
	}
	if r.Answer != nil {
		sections = append(sections, renderAnswer(*r.Answer, s))
	}
	if r.Stats != nil {
		sections = append(sections, renderStats(*r.Stats, s))
	}
	if r.Settings != nil {
		sections = append(sections, renderSettings(*r.Settings, s))
	}

	if len(sections) == 0 {
		return s.empty.Render("Nothing to show.")
	}

	styled := make([]string, 0, len(sections))
	for i, section := range sections {
		if i > 0 {
			section = s.section.Render(section)
		}
		styled = append(styled, section)
	}

	return lipgloss.JoinVertical(lipgloss.Left, styled...)
}

func renderTask(task domain.Task, s styles) string {
	lines := []string{
		s.title.Render("Task " + string(task.ID)),
		s.header.Render("video: " + task.VideoURL),
	}

	statusLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.label.Render("status:"),
		" ",
		statusStyle(task.Status, s).Render(string(task.Status)),
	)
	lines = append(lines, statusLine)

	if task.Status == domain.TaskStatusProcessing || task.Status == domain.TaskStatusPending {
		progressLine := lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.label.Render("progress:"),
			" ",
			renderProgressBar(task.Progress, 24, s),
			" ",
			s.detail.Render(fmt.Sprintf("%3.0f%%", math.Round(clampPercent(task.Progress)))),
		)
		lines = append(lines, progressLine)
		if task.CurrentStage != "" {
			lines = append(lines, s.detail.Render("stage: "+task.CurrentStage))
		}
	}

	if task.Status == domain.TaskStatusFailed && task.ErrorMessage != "" {
		lines = append(lines, s.warning.Render("error: "+task.ErrorMessage))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusStyle(status domain.TaskStatus, s styles) lipgloss.Style {
	switch status {
	case domain.TaskStatusCompleted:
		return s.good
	case domain.TaskStatusFailed:
		return s.bad
	default:
		return s.detail
	}
}

func renderSegments(segments []domain.Segment, total int, s styles) string {
	if total < len(segments) {
		total = len(segments)
	}

	lines := []string{
		s.title.Render("Segments"),
		s.header.Render(fmt.Sprintf("ready: %d of %d", len(segments), total)),
	}

	if len(segments) == 0 {
		lines = append(lines, s.empty.Render("No segments ready yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, segment := range segments {
		lines = append(lines, renderSegmentLine(segment, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSegmentLine(segment domain.Segment, s styles) string {
	span := fmt.Sprintf("%s-%s", clockTime(segment.StartTime), clockTime(segment.EndTime))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.label.Render(fmt.Sprintf("#%-3d", segment.Number)),
		s.detail.Render(span),
		"  ",
		s.detail.Render(segment.TopicTitle),
		" ",
		s.header.Render(fmt.Sprintf("(%d quizzes)", len(segment.Quizzes))),
	)
}

func renderReview(segmentID domain.SegmentID, items []domain.ReviewItem, s styles) string {
	lines := []string{
		s.title.Render(fmt.Sprintf("Review for segment %d", segmentID)),
	}

	if len(items) == 0 {
		lines = append(lines, s.empty.Render("No answers recorded for this segment."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	correct := 0
	for _, item := range items {
		if item.IsCorrect {
			correct++
		}
	}
	lines = append(lines, s.header.Render(fmt.Sprintf("answered: %d, correct: %d", len(items), correct)))

	for _, item := range items {
		lines = append(lines, renderReviewItem(item, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderReviewItem(item domain.ReviewItem, s styles) string {
	verdict := s.good.Render("correct")
	if !item.IsCorrect {
		verdict = s.bad.Render("incorrect")
	}

	parts := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, s.detail.Render(item.Question), " ", verdict),
	}

	if !item.IsCorrect && item.CorrectIndex >= 0 && item.CorrectIndex < len(item.Options) {
		parts = append(parts, s.label.Render("  answer: "+item.Options[item.CorrectIndex]))
	}
	if item.Explanation != "" {
		parts = append(parts, s.header.Render("  "+item.Explanation))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderAnswer(result domain.AnswerResult, s styles) string {
	verdict := s.good.Render("Correct!")
	if !result.IsCorrect {
		verdict = s.bad.Render("Incorrect.")
	}

	lines := []string{verdict}
	if result.Explanation != "" {
		lines = append(lines, s.detail.Render(result.Explanation))
	}
	lines = append(lines, s.header.Render(fmt.Sprintf(
		"running tally: %d/%d (%.0f%%)",
		result.Stats.TotalCorrect, result.Stats.TotalAnswered, result.Stats.Accuracy,
	)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderStats(stats domain.UserStats, s styles) string {
	lines := []string{
		s.title.Render("Your stats"),
		statLine("videos watched", fmt.Sprintf("%d", stats.VideosWatched), s),
		statLine("questions answered", fmt.Sprintf("%d", stats.QuestionsAnswered), s),
		statLine("correct answers", fmt.Sprintf("%d", stats.CorrectAnswers), s),
	}

	accuracyLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.label.Render("accuracy:"),
		" ",
		renderProgressBar(stats.Accuracy, 24, s),
		" ",
		s.detail.Render(fmt.Sprintf("%3.0f%%", math.Round(clampPercent(stats.Accuracy)))),
	)
	lines = append(lines, accuracyLine)

	if stats.CurrentStreak > 0 {
		lines = append(lines, statLine("current streak", fmt.Sprintf("%d", stats.CurrentStreak), s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSettings(settings domain.Settings, s styles) string {
	enabled := "on"
	if !settings.Enabled {
		enabled = "off"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render("Settings"),
		statLine("endpoint", settings.Endpoint, s),
		statLine("language", settings.Language, s),
		statLine("quizzes", enabled, s),
	)
}

func statLine(key, value string, s styles) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.label.Render(key+":"),
		" ",
		s.detail.Render(value),
	)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100.0))
	if filled > width {
		filled = width
	}
	empty := width - filled

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clockTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
