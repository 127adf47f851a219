package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karatal/video-quiz-cli/internal/bus"
	"github.com/karatal/video-quiz-cli/internal/domain"
)

func newLoginCmd(app *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the quiz backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, app, bus.TopicAuthLogin, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newRegisterCmd(app *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, app, bus.TopicAuthRegister, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runAuth(cmd *cobra.Command, app *app, topic, email, password string) error {
	return withCoordinator(cmd, app, func(ctx context.Context) error {
		result, err := app.request(ctx, topic, bus.Credentials{
			Email:    email,
			Password: password,
		})
		if err != nil {
			return err
		}

		session, ok := result.(domain.Session)
		if !ok {
			return fmt.Errorf("unexpected %s response %T", topic, result)
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", session.User.Email)
		return err
	})
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the local session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context) error {
				if _, err := app.request(ctx, bus.TopicAuthLogout, nil); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return err
			})
		},
	}
}
