package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

func newLoginCommand(rt *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the returned credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("AUTHCLIENT_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("--username and --password (or AUTHCLIENT_PASSWORD) are required")
			}

			if err := rt.session.Login(cmd.Context(), username, password); err != nil {
				var authErr *goAuthClient.AuthError
				if errors.As(err, &authErr) {
					return errors.New(authErr.Message)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", rt.session.View().Subject)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account identifier")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account secret")
	return cmd
}

func newWhoamiCommand(rt *app) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Restore the session and call a protected endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !rt.session.Restore(cmd.Context()).IsAuthenticated {
				return goAuthClient.ErrNotAuthenticated
			}

			resp, err := rt.session.API().Do(cmd.Context(), http.MethodGet, path, nil, nil)
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, resp.Body(), "", "  ") != nil {
				pretty.Reset()
				pretty.Write(resp.Body())
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "/me", "protected path to request")
	return cmd
}

func newLogoutCommand(rt *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Notify the server and forget stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newRestoreCommand(rt *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Silently restore the stored session and print its view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view := rt.session.Restore(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:   %s\n", view.State)
			if view.IsAuthenticated {
				fmt.Fprintf(out, "subject: %s\n", view.Subject)
				fmt.Fprintf(out, "roles:   %s\n", strings.Join(view.Roles, ", "))
			}
			return nil
		},
	}
}
