package cli

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Festival administration",
	}

	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Manage hosts",
	}
	hostCmd.AddCommand(newAdminHostCreateCmd())
	hostCmd.AddCommand(newAdminHostListCmd())

	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Manage events",
	}
	eventCmd.AddCommand(newAdminEventCreateCmd())
	eventCmd.AddCommand(newAdminEventListCmd())

	cmd.AddCommand(newAdminLoginCmd())
	cmd.AddCommand(hostCmd)
	cmd.AddCommand(eventCmd)
	cmd.AddCommand(newAdminQRCmd())
	cmd.AddCommand(newAdminBadgeCmd())
	cmd.AddCommand(newAdminAuditCmd())

	return cmd
}

func newAdminHostCreateCmd() *cobra.Command {
	var req request.CreateHostRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a host",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Host
			if err := client.Post(cmd.Context(), "/api/v1/admin/hosts", req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Host display name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newAdminHostListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []response.Host
			if err := client.Get(cmd.Context(), "/api/v1/admin/hosts", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newAdminEventCreateCmd() *cobra.Command {
	var req request.CreateEventRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event run by a host",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Event
			if err := client.Post(cmd.Context(), "/api/v1/admin/events", req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.HostID, "host", "", "Host id (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Event name (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Event description")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newAdminEventListCmd() *cobra.Command {
	var hostID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/admin/events"
			if hostID != "" {
				path += "?host_id=" + url.QueryEscape(hostID)
			}
			var result []response.Event
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&hostID, "host", "", "Only events run by this host")

	return cmd
}

func newAdminQRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr <event-id>",
		Short: "Print the URL an event's QR code encodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.QRTarget
			if err := client.Get(cmd.Context(), "/api/v1/admin/events/"+url.PathEscape(args[0])+"/qr", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newAdminBadgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "badge <short-id>",
		Short: "Print the URL a subject's badge QR code encodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.BadgeTarget
			if err := client.Get(cmd.Context(), "/api/v1/admin/subjects/"+url.PathEscape(args[0])+"/qr", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newAdminAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare stored points with points recomputed from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Audit
			if err := client.Get(cmd.Context(), "/api/v1/admin/leaderboard/audit", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
