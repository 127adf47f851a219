package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karatal/video-quiz-cli/internal/adapters/render/report"
	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change settings",
	}

	cmd.AddCommand(newConfigGetCmd(app), newConfigSetCmd(app))

	return cmd
}

func newConfigGetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				result, err := app.request(ctx, bus.TopicConfigGet, nil)
				if err != nil {
					return err
				}

				settings := result.(domain.Settings)
				return app.print(cmd, report.Report{Settings: &settings})
			})
		},
	}
}

func newConfigSetCmd(app *app) *cobra.Command {
	var endpoint, language string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				// Unchanged fields keep their current values, so read
				// before write.
				current, err := app.request(ctx, bus.TopicConfigGet, nil)
				if err != nil {
					return err
				}
				settings := current.(domain.Settings)

				if cmd.Flags().Changed("endpoint") {
					settings.Endpoint = endpoint
				}
				if cmd.Flags().Changed("language") {
					settings.Language = language
				}
				if cmd.Flags().Changed("enabled") {
					settings.Enabled = enabled
				}

				result, err := app.request(ctx, bus.TopicConfigSet, settings)
				if err != nil {
					return err
				}

				saved := result.(domain.Settings)
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), "Settings saved."); err != nil {
					return err
				}
				return app.print(cmd, report.Report{Settings: &saved})
			})
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Backend base URL")
	cmd.Flags().StringVar(&language, "language", "", "Quiz language code (en, es, de, ...)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether quizzes auto-open during playback")

	return cmd
}
