package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/intake"
	"github.com/apexfest/checkin/internal/logging"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/auth"
)

// apiResolver looks subjects up through the host API
type apiResolver struct {
	client *Client
}

func (r apiResolver) ResolveSubject(ctx context.Context, short string) (*model.Subject, error) {
	var s response.Subject
	if err := r.client.Get(ctx, "/api/v1/subjects/"+url.PathEscape(short), &s); err != nil {
		return nil, err
	}
	return &model.Subject{
		ID:          model.SubjectID(s.ID),
		DisplayName: s.DisplayName,
		Affiliation: s.Affiliation,
		Category:    model.Category(s.Category),
		Points:      s.Points,
		CreatedAt:   s.CreatedAt,
	}, nil
}

// apiSubmitter posts batches to the submissions endpoint
type apiSubmitter struct {
	client *Client
}

func (s apiSubmitter) Submit(ctx context.Context, batch intake.Batch) (*intake.Receipt, error) {
	req := request.SubmissionRequest{
		BatchID: string(batch.BatchID),
		Entries: make([]request.SubmissionEntry, 0, len(batch.Entries)),
	}
	for _, e := range batch.Entries {
		eventIDs := make([]string, 0, len(e.EventIDs))
		for _, id := range e.EventIDs {
			eventIDs = append(eventIDs, string(id))
		}
		req.Entries = append(req.Entries, request.SubmissionEntry{
			SubjectID: string(e.SubjectID),
			EventIDs:  eventIDs,
			Outcome:   string(e.Outcome),
		})
	}

	var result response.SubmissionResponse
	if err := s.client.Post(ctx, "/api/v1/submissions", req, &result); err != nil {
		return nil, err
	}
	return &intake.Receipt{Records: result.Records, Duplicate: result.Duplicate}, nil
}

// openQueue loads the signed-in host's saved queue
func openQueue(cmd *cobra.Command) (*intake.Queue, error) {
	var session response.Session
	if err := client.Get(cmd.Context(), "/api/v1/auth/session", &session); err != nil {
		return nil, err
	}
	if session.Role != string(auth.RoleHost) {
		return nil, fmt.Errorf("%w: the intake queue needs a host session", model.ErrForbidden)
	}

	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: "text", Writer: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}

	hostID := model.HostID(session.HostID)
	store := intake.NewFileStore(cfg.StateDir, hostID)
	return intake.Open(hostID, store, apiResolver{client}, apiSubmitter{client}, random.New(),
		logger.With(slog.String("component", "intake")))
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue scanned badges and submit them in one batch",
		Long: fmt.Sprintf(`Hosts scan up to %d attendee badges into a queue kept on this machine,
choose events and an outcome for each, then submit everything at once.

A failed submission leaves the queue untouched, so it is safe to retry.`, model.MaxQueueEntries),
	}

	cmd.AddCommand(newQueueAddCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueSelectCmd())
	cmd.AddCommand(newQueueApplyAllCmd())
	cmd.AddCommand(newQueueOutcomeCmd())
	cmd.AddCommand(newQueueSubmitCmd())
	cmd.AddCommand(newQueueClearCmd())

	return cmd
}

func newQueueAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <qr-text|badge-id>",
		Short: "Add a scanned badge to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			entry, err := q.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			output(cmd).Print(entry)
			return nil
		},
	}
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			output(cmd).Print(q.Entries())
			return nil
		},
	}
}

func newQueueSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <badge-id> <event-id>...",
		Short: "Toggle events for a queued attendee",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			var entry *intake.Entry
			for _, eventID := range args[1:] {
				entry, err = q.Toggle(args[0], model.EventID(eventID))
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("%w: %s", model.ErrEntryNotFound, args[0])
				}
			}
			output(cmd).Print(entry)
			return nil
		},
	}
}

func newQueueApplyAllCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply-all <badge-id>",
		Short: "Copy one attendee's events to everyone in the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			if !yes {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Replace the events of all %d queued attendees? [y/N] ", q.Len())
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
				default:
					output(cmd).PrintMessage("Cancelled")
					return nil
				}
			}
			if err := q.ApplyToAll(args[0]); err != nil {
				return err
			}
			output(cmd).Print(q.Entries())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func newQueueOutcomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcome <badge-id> <win|participate|skipped>",
		Short: "Set a queued attendee's outcome",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := model.ParseOutcome(args[1])
			if err != nil {
				return err
			}
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			if err := q.SetOutcome(args[0], outcome); err != nil {
				return err
			}
			output(cmd).Print(q.Entries())
			return nil
		},
	}
}

func newQueueSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Submit the whole queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			result, err := q.Submit(cmd.Context())
			if err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newQueueClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			if err := q.Clear(); err != nil {
				return err
			}
			output(cmd).PrintMessage("Queue cleared")
			return nil
		},
	}
}
