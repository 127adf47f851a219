package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karatal/video-quiz-cli/internal/adapters/render/report"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
	"github.com/karatal/video-quiz-cli/internal/ports"
)

func newStatusCmd(app *app) *cobra.Command {
	var taskID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current task's processing status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				fetch := func(ctx context.Context) (domain.Task, error) {
					result, err := app.request(ctx, bus.TopicVideoStatus, bus.TaskRef{TaskID: domain.TaskID(taskID)})
					if err != nil {
						return domain.Task{}, err
					}
					return result.(domain.Task), nil
				}

				if asJSON {
					task, err := fetch(ctx)
					if err != nil {
						return err
					}
					return writeJSON(cmd, task)
				}

				task, err := runFetchSpinner(ctx, cmd.ErrOrStderr(), "Fetching task status...", fetch)
				if err != nil {
					return err
				}
				return app.print(cmd, report.Report{Task: &task})
			})
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Task ID (defaults to the current task)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of the styled report")

	return cmd
}

func newSegmentsCmd(app *app) *cobra.Command {
	var taskID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List the segments ready on the current task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				result, err := app.request(ctx, bus.TopicVideoSegments, bus.TaskRef{TaskID: domain.TaskID(taskID)})
				if err != nil {
					return err
				}

				segments := result.(ports.SegmentsResult)
				if asJSON {
					return writeJSON(cmd, segments)
				}
				return app.print(cmd, report.Report{
					Segments:      segments.Segments,
					SegmentsTotal: len(segments.Segments),
				})
			})
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Task ID (defaults to the current task)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of the styled report")

	return cmd
}

func writeJSON(cmd *cobra.Command, payload any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
