package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/session"
)

func newLoginCmd(e *env) *cobra.Command {
	var (
		handle   string
		password string
		signup   bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the registry",
		Long: `Log in with a handle and password. The token is kept in the session
store until logout or until the registry rejects it.

Without --password the password is read from the first line of stdin.

Examples:
  circuitpad login --handle alice
  circuitpad login --handle alice --signup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(handle) == "" {
				return apperror.ValidationFailed("handle", "--handle is required")
			}
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
			}
			if err := e.connect(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if signup {
				if _, err := e.api.CreateAccount(ctx, handle, password); err != nil {
					return err
				}
			}
			sess, err := e.api.Login(ctx, handle, password)
			if err != nil {
				return err
			}
			if err := e.sessions.Save(&session.Session{
				Token:     sess.Token,
				AccountID: sess.Account.ID,
				Handle:    sess.Account.Handle,
			}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.Account.Handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "account handle")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	cmd.Flags().BoolVar(&signup, "signup", false, "create the account first")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := e.current()
			if err != nil {
				return err
			}
			if sess == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			// An expired token is already gone server-side; the client has
			// cleared the store in that case.
			if err := e.api.Logout(cmd.Context()); err != nil && !errors.Is(err, apperror.ErrUnauthorized) {
				return err
			}
			if err := e.sessions.Clear(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", sess.Handle)
			return nil
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := e.current()
			if err != nil {
				return err
			}
			if sess == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			account, err := e.api.Me(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", account.Handle, account.ID)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}
	return line, nil
}
