package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vq",
		Short:         "Video Quiz CLI (vq): turn videos into interactive quizzes",
		Long:          "vq (Video Quiz CLI) submits a video for segmentation and quiz generation, follows processing over a live push connection, and runs an interactive viewing session where quizzes pop up as playback crosses segment boundaries.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newWatchCmd(app),
		newStatusCmd(app),
		newSegmentsCmd(app),
		newAnswerCmd(app),
		newReviewCmd(app),
		newProgressCmd(app),
		newRetakeCmd(app),
		newStatsCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
