package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/karatal/video-quiz-cli/internal/adapters/render/report"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

func newAnswerCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <quiz-id> <option-index>",
		Short: "Submit an answer to a quiz question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quiz id %q: %w", args[0], err)
			}
			selected, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid option index %q: %w", args[1], err)
			}

			return withCoordinator(cmd, app, func(ctx context.Context) error {
				result, err := app.request(ctx, bus.TopicQuizAnswer, bus.SubmitAnswer{
					QuizID:        domain.QuizID(quizID),
					SelectedIndex: selected,
				})
				if err != nil {
					return err
				}

				verdict := result.(domain.AnswerResult)
				return app.print(cmd, report.Report{Answer: &verdict})
			})
		},
	}
}

func newReviewCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review <segment-id>",
		Short: "Review your answers for a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segmentID, err := parseSegmentID(args[0])
			if err != nil {
				return err
			}

			return withCoordinator(cmd, app, func(ctx context.Context) error {
				result, err := app.request(ctx, bus.TopicQuizReview, bus.SegmentRef{SegmentID: segmentID})
				if err != nil {
					return err
				}

				items := result.([]domain.ReviewItem)
				return app.print(cmd, report.Report{
					ReviewSegment: segmentID,
					Review:        items,
				})
			})
		},
	}
}

func newProgressCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <segment-id>",
		Short: "Show how much of a segment's quiz you have completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segmentID, err := parseSegmentID(args[0])
			if err != nil {
				return err
			}

			return withCoordinator(cmd, app, func(ctx context.Context) error {
				result, err := app.request(ctx, bus.TopicQuizProgress, bus.SegmentRef{SegmentID: segmentID})
				if err != nil {
					return err
				}

				progress := result.(domain.SegmentProgress)
				state := "in progress"
				if progress.IsComplete {
					state = "complete"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"Segment %d: %d/%d answered, %d correct (%.0f%%), %s\n",
					progress.SegmentID, progress.AnsweredQuestions, progress.TotalQuestions,
					progress.CorrectAnswers, progress.ScorePercentage, state,
				)
				return err
			})
		},
	}
}

func newRetakeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retake <segment-id>",
		Short: "Clear a segment's answers so it can be taken again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segmentID, err := parseSegmentID(args[0])
			if err != nil {
				return err
			}

			return withCoordinator(cmd, app, func(ctx context.Context) error {
				if _, err := app.request(ctx, bus.TopicQuizRetake, bus.SegmentRef{SegmentID: segmentID}); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Segment %d reset for retake.\n", segmentID)
				return err
			})
		},
	}
}

func parseSegmentID(raw string) (domain.SegmentID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid segment id %q: %w", raw, err)
	}
	return domain.SegmentID(id), nil
}
