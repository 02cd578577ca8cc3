package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/dependencies/clock"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/leaderboard"
)

// EventLeaderboardUpdate is the SSE event name carrying a leaderboard snapshot
const EventLeaderboardUpdate = "leaderboard-update"

// DefaultSnapshotSize is the number of rows per leaderboard in a snapshot
const DefaultSnapshotSize = 10

// Broadcaster pushes a fresh leaderboard to stream clients whenever the
// ledger changes. It is a notify.Publisher.
type Broadcaster struct {
	hubs        *HubManager
	leaderboard *leaderboard.Service
	clock       clock.Clock
	logger      *slog.Logger
	size        int
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubs *HubManager, leaderboard *leaderboard.Service, clock clock.Clock, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubs:        hubs,
		leaderboard: leaderboard,
		clock:       clock,
		logger:      logger.With(slog.String("component", "sse-broadcaster")),
		size:        DefaultSnapshotSize,
	}
}

// Snapshot renders the current top subjects and hosts as JSON
func (b *Broadcaster) Snapshot(ctx context.Context) ([]byte, error) {
	subjects, err := b.leaderboard.Subjects(ctx, b.size)
	if err != nil {
		return nil, err
	}
	hosts, err := b.leaderboard.Hosts(ctx, leaderboard.MetricParticipations, b.size)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(response.Leaderboard{
		Subjects:  response.SubjectStandings(subjects),
		Hosts:     response.HostStandings(hosts),
		UpdatedAt: b.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	return data, nil
}

// Publish broadcasts a snapshot after any ledger or registration change.
// Nothing is computed while no one is watching.
func (b *Broadcaster) Publish(ctx context.Context, n model.Notification) error {
	hub := b.hubs.GetHub(StreamLeaderboard)
	if hub == nil || hub.ClientCount() == 0 {
		return nil
	}

	data, err := b.Snapshot(ctx)
	if err != nil {
		return err
	}
	hub.BroadcastEvent(EventLeaderboardUpdate, string(data))
	b.logger.Debug("leaderboard broadcast", slog.String("cause", string(n.Type)))
	return nil
}

// ServeLeaderboard attaches the request to the leaderboard stream, starting
// with the current snapshot
func (b *Broadcaster) ServeLeaderboard(w http.ResponseWriter, r *http.Request, viewer string) {
	var initial []byte
	data, err := b.Snapshot(r.Context())
	if err != nil {
		b.logger.Error("sse failed to build initial snapshot", slog.Any("error", err))
	} else {
		initial = formatSSEMessage(EventLeaderboardUpdate, string(data))
	}
	ServeSSE(w, r, b.hubs.GetOrCreateHub(StreamLeaderboard), viewer, initial)
}
