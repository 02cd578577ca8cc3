package live

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/dependencies/mocks"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/storage/memory"
	"github.com/apexfest/checkin/internal/testutil"
)

var epoch = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *memory.Storage) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateSubject(ctx, &model.Subject{ID: "a1b2c3d4-0000-4000-8000-000000000001", DisplayName: "Alice", Category: model.CategoryPrimary}))
	require.NoError(t, store.CreateHost(ctx, &model.Host{ID: "h0a1-0000-4000-8000-000000000001", DisplayName: "Robotics"}))

	manager := NewHubManager(testutil.NopLogger(), nil)
	t.Cleanup(manager.CloseAll)
	return NewBroadcaster(manager, leaderboard.New(store), mocks.NewMockClock(epoch), testutil.NopLogger()), store
}

func TestBroadcaster_Snapshot(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	data, err := b.Snapshot(context.Background())
	require.NoError(t, err)

	var board response.Leaderboard
	require.NoError(t, json.Unmarshal(data, &board))
	require.Len(t, board.Subjects, 1)
	assert.Equal(t, "Alice", board.Subjects[0].DisplayName)
	assert.Equal(t, "a1b2c3d4", board.Subjects[0].ShortID)
	require.Len(t, board.Hosts, 1)
	assert.Equal(t, "Robotics", board.Hosts[0].DisplayName)
	assert.True(t, epoch.Equal(board.UpdatedAt))
}

func TestBroadcaster_PublishWithoutViewersIsNoop(t *testing.T) {
	b, _ := newTestBroadcaster(t)
	err := b.Publish(context.Background(), model.Notification{Type: model.NotificationBatchSubmitted})
	assert.NoError(t, err)
	assert.Nil(t, b.hubs.GetHub(StreamLeaderboard))
}

func TestBroadcaster_PublishReachesViewers(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	hub := b.hubs.GetOrCreateHub(StreamLeaderboard)
	client := NewClient("viewer")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), model.Notification{Type: model.NotificationParticipationRecord}))

	select {
	case msg := <-client.send:
		assert.True(t, strings.HasPrefix(string(msg), "event: leaderboard-update\ndata: {"))
		assert.Contains(t, string(msg), `"display_name":"Alice"`)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leaderboard update")
	}
}

func TestBroadcaster_ServeLeaderboardSendsInitialSnapshot(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeLeaderboard(w, r, "anonymous")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(events) < 2 {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"connected", EventLeaderboardUpdate}, events)
}
