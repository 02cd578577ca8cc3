package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/live"
)

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show festival standings",
	}

	cmd.AddCommand(newLeaderboardSubjectsCmd())
	cmd.AddCommand(newLeaderboardHostsCmd())
	cmd.AddCommand(newLeaderboardWatchCmd())

	return cmd
}

func newLeaderboardSubjectsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Attendees ranked by points",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []response.SubjectStanding
			path := "/api/v1/leaderboard/subjects?limit=" + strconv.Itoa(limit)
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of rows")

	return cmd
}

func newLeaderboardHostsCmd() *cobra.Command {
	var (
		limit  int
		metric string
	)

	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Hosts ranked by participations or points given",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("metric", metric)

			var result []response.HostStanding
			if err := client.Get(cmd.Context(), "/api/v1/leaderboard/hosts?"+q.Encode(), &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of rows")
	cmd.Flags().StringVar(&metric, "metric", "participations", "Ranking: participations, points")

	return cmd
}

func newLeaderboardWatchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream leaderboard updates",
		Long: `Connect to the leaderboard stream and print the standings every time
they change. The current standings are printed on connect.

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return streamLeaderboard(cmd, count)
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many updates (0 streams until interrupted)")

	return cmd
}

// SSEEvent represents a parsed SSE event
type SSEEvent struct {
	Time  time.Time       `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func streamLeaderboard(cmd *cobra.Command, count int) error {
	streamURL := strings.TrimSuffix(cfg.ServerURL, "/") + "/api/v1/leaderboard/stream"

	// Set up cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	// No timeout for SSE
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	out := output(cmd)
	jsonOutput := cfg.Output == "json"

	// Parse SSE stream
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var currentEvent string
	var dataLines []string
	updates := 0

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		} else if line == "" {
			// End of event
			if currentEvent != "" {
				data := strings.Join(dataLines, "\n")
				if err := printEvent(out, currentEvent, data, jsonOutput); err != nil {
					return err
				}
				if currentEvent == live.EventLeaderboardUpdate {
					updates++
					if count > 0 && updates >= count {
						return nil
					}
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is expected
		if ctx.Err() != nil {
			if !jsonOutput {
				out.PrintMessage("\nDisconnected")
			}
			return nil
		}
		return fmt.Errorf("stream error: %w", err)
	}

	if !jsonOutput {
		out.PrintMessage("Disconnected")
	}
	return nil
}

func printEvent(out *Output, event, data string, jsonOutput bool) error {
	now := time.Now()

	if jsonOutput {
		raw := json.RawMessage(data)
		if !json.Valid(raw) {
			raw, _ = json.Marshal(data)
		}
		out.printJSONLine(SSEEvent{Time: now, Event: event, Data: raw})
		return nil
	}

	if event != live.EventLeaderboardUpdate {
		return nil
	}
	var board response.Leaderboard
	if err := json.Unmarshal([]byte(data), &board); err != nil {
		return fmt.Errorf("bad leaderboard update: %w", err)
	}
	out.printf("[%s] leaderboard\n", now.Format("2006-01-02 15:04:05"))
	out.printSubjectStandings(board.Subjects)
	return nil
}
