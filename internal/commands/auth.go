package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/invoicer/internal/remote"
)

func newLoginCommand(configPath *string) *cobra.Command {
	var username string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the invoicing backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.client.SignIn(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login failed: %s", remote.Message(err))
			}
			if err := a.sessions.Save(cmd.Context(), sess); err != nil {
				return err
			}
			a.log.Info().Str("user", sess.User.Username).Msg("logged in")
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", sess.User.Username, strings.Join(sess.User.Roles, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account username (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLogoutCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.sessions.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if user == nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			fmt.Fprintf(out, "%s <%s>\nroles: %s\n", user.Username, user.Email, strings.Join(user.Roles, ", "))
			return nil
		},
	}
}
