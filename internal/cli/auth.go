package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
)

func newRegisterCmd() *cobra.Command {
	var req request.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register as an attendee and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.AuthResponse
			if err := client.Post(cmd.Context(), "/api/v1/auth/register", req, &result); err != nil {
				return err
			}
			return saveSession(cmd, result)
		},
	}

	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&req.Affiliation, "affiliation", "", "Club or school")
	cmd.Flags().StringVar(&req.Category, "category", "primary", "Registration track: primary, secondary")
	cmd.Flags().StringToStringVar(&req.Profile, "profile", nil,
		"Profile details as key=value: class, roll_number, age, gender (primary) or crn (secondary)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <badge-id>",
		Short: "Sign in as an attendee with the 8 character badge id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return login(cmd, "/api/v1/auth/login", request.LoginRequest{ShortID: args[0]})
		},
	}
}

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host sign-in",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login <host-id>",
		Short: "Sign in as a host with the 4 character host id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return login(cmd, "/api/v1/auth/host-login", request.LoginRequest{ShortID: args[0]})
		},
	})

	return cmd
}

func newAdminLoginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as the festival admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CHECKIN_ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or CHECKIN_ADMIN_PASSWORD is required")
			}
			return login(cmd, "/api/v1/auth/admin-login", request.AdminLoginRequest{Password: password})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Admin password (env: CHECKIN_ADMIN_PASSWORD)")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Session
			if err := client.Get(cmd.Context(), "/api/v1/auth/session", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token != "" {
				if err := client.Post(cmd.Context(), "/api/v1/auth/logout", nil, nil); err != nil {
					return err
				}
			}
			if err := cfg.ClearToken(); err != nil {
				return err
			}
			output(cmd).PrintMessage("Signed out")
			return nil
		},
	}
}

func login(cmd *cobra.Command, path string, body any) error {
	var result response.AuthResponse
	if err := client.Post(cmd.Context(), path, body, &result); err != nil {
		return err
	}
	return saveSession(cmd, result)
}

func saveSession(cmd *cobra.Command, result response.AuthResponse) error {
	if err := cfg.SaveToken(result.SessionToken); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	client.SetToken(result.SessionToken)
	output(cmd).Print(result)
	return nil
}
