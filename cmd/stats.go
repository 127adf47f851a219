package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/karatal/video-quiz-cli/internal/adapters/render/report"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

func newStatsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show your lifetime quiz statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				fetch := func(ctx context.Context) (domain.UserStats, error) {
					result, err := app.request(ctx, bus.TopicUserStats, nil)
					if err != nil {
						return domain.UserStats{}, err
					}
					return result.(domain.UserStats), nil
				}

				if asJSON {
					stats, err := fetch(ctx)
					if err != nil {
						return err
					}
					return writeJSON(cmd, stats)
				}

				stats, err := runFetchSpinner(ctx, cmd.ErrOrStderr(), "Fetching stats...", fetch)
				if err != nil {
					return err
				}
				return app.print(cmd, report.Report{Stats: &stats})
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of the styled report")

	return cmd
}
