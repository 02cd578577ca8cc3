package cli

import (
	"github.com/spf13/cobra"

	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <qr-text|event-id>",
		Short: "Check in to an event",
		Long: `Check in to an event by its QR text or event id.

Checking in to the same event again within five minutes is refused and
reports how long to wait.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.CheckInResponse
			if err := client.Post(cmd.Context(), "/api/v1/checkins", request.CheckInRequest{QR: args[0]}, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your participation",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []response.HistoryEntry
			if err := client.Get(cmd.Context(), "/api/v1/me/participation", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the events the signed-in host runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []response.Event
			if err := client.Get(cmd.Context(), "/api/v1/host/events", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
