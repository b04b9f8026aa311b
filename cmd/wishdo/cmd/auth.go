package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wishdo/backend"
	"wishdo/backend/rest"
	"wishdo/internal/prompt"
	"wishdo/internal/utils"
)

// newLoginCmd creates the 'login' command.
func newLoginCmd(stdout, stderr io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the todo service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				email, err = prompt.ReadLine(a.stdin, stderr, "Email")
				if err != nil {
					return err
				}
			}
			if err := utils.ValidateEmail(email); err != nil {
				return err
			}

			password, err := prompt.ReadPassword(a.stdin, stderr, "Password")
			if err != nil {
				return err
			}

			auth, err := a.client.Login(context.Background(), email, password)
			if err != nil {
				return a.decorate(err)
			}
			if err := a.session.Login(auth.Token, auth.User); err != nil {
				return fmt.Errorf("failed to store session: %w", err)
			}

			_, _ = fmt.Fprintf(stdout, "Logged in as %s <%s>\n", auth.User.Name, auth.User.Email)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("email", "e", "", "Account email (prompted when omitted)")

	return cmd
}

// newRegisterCmd creates the 'register' command.
func newRegisterCmd(stdout, stderr io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name, err = prompt.ReadLine(a.stdin, stderr, "Name")
				if err != nil {
					return err
				}
			}
			if err := utils.ValidateName(name); err != nil {
				return err
			}

			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				email, err = prompt.ReadLine(a.stdin, stderr, "Email")
				if err != nil {
					return err
				}
			}
			if err := utils.ValidateEmail(email); err != nil {
				return err
			}

			password, err := prompt.ReadPassword(a.stdin, stderr, "Password")
			if err != nil {
				return err
			}
			if err := utils.ValidatePassword(password); err != nil {
				return err
			}
			confirm, err := prompt.ReadPassword(a.stdin, stderr, "Confirm password")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			auth, err := a.client.Register(context.Background(), name, email, password)
			if err != nil {
				return a.decorate(err)
			}
			if err := a.session.Login(auth.Token, auth.User); err != nil {
				return fmt.Errorf("failed to store session: %w", err)
			}

			_, _ = fmt.Fprintf(stdout, "Registered and logged in as %s <%s>\n", auth.User.Name, auth.User.Email)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("name", "n", "", "Display name (prompted when omitted)")
	cmd.Flags().StringP("email", "e", "", "Account email (prompted when omitted)")

	return cmd
}

// newLogoutCmd creates the 'logout' command.
func newLogoutCmd(stdout io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Logout(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Logged out.")
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newWhoamiCmd creates the 'whoami' command. With --name it also updates
// the profile before printing it.
func newWhoamiCmd(stdout io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession("viewing your profile"); err != nil {
				return err
			}

			ctx := context.Background()
			var user *backend.User

			if cmd.Flags().Changed("name") {
				name, _ := cmd.Flags().GetString("name")
				if err := utils.ValidateName(name); err != nil {
					return err
				}
				user, err = a.client.UpdateMe(ctx, rest.ProfileUpdates{Name: &name})
			} else {
				user, err = a.client.Me(ctx)
			}
			if err != nil {
				return a.decorate(err)
			}

			if err := a.session.UpdateUser(*user); err != nil {
				utils.Warnf("failed to update stored session: %v", err)
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				data, err := json.Marshal(map[string]string{
					"id":    user.ID,
					"name":  user.Name,
					"email": user.Email,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "%s <%s>\n", user.Name, user.Email)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("name", "n", "", "Update the display name")

	return cmd
}
