package live

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/testutil"
)

func TestFormatSSEMessage(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		data      string
		expected  string
	}{
		{
			name:      "single line data",
			eventName: "leaderboard-update",
			data:      `{"subjects":[]}`,
			expected:  "event: leaderboard-update\ndata: {\"subjects\":[]}\n\n",
		},
		{
			name:      "multi-line data",
			eventName: "test",
			data:      "{\n  \"a\": 1\n}",
			expected:  "event: test\ndata: {\ndata:   \"a\": 1\ndata: }\n\n",
		},
		{
			name:      "empty data",
			eventName: "ping",
			data:      "",
			expected:  "event: ping\ndata: \n\n",
		},
		{
			name:      "carriage returns and trailing newline",
			eventName: "test",
			data:      "line1\r\nline2\r\n",
			expected:  "event: test\ndata: line1\ndata: line2\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatSSEMessage(tt.eventName, tt.data)
			if string(result) != tt.expected {
				t.Errorf("formatSSEMessage(%q, %q)\ngot:  %q\nwant: %q",
					tt.eventName, tt.data, string(result), tt.expected)
			}
		})
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub(StreamLeaderboard, testutil.NopLogger(), nil)
	go hub.Run()
	defer hub.Close()

	client := NewClient("viewer1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastEvent("test", "hello")

	select {
	case msg := <-client.send:
		if string(msg) != "event: test\ndata: hello\n\n" {
			t.Errorf("unexpected message %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := NewHub(StreamLeaderboard, testutil.NopLogger(), nil)
	go hub.Run()
	defer hub.Close()

	client := NewClient("viewer1")
	hub.Register(client)
	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("client channel should be closed")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(StreamLeaderboard, testutil.NopLogger(), nil)
	go hub.Run()

	client := NewClient("viewer1")
	hub.Register(client)
	hub.Close()
	hub.Close()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client not disconnected")
	}

	// registering after close must not block
	late := NewClient("late")
	hub.Register(late)
	hub.Unregister(late)
}

func TestHubManager_TracksClientTotal(t *testing.T) {
	var (
		mu     sync.Mutex
		totals []int
	)
	manager := NewHubManager(testutil.NopLogger(), func(total int) {
		mu.Lock()
		defer mu.Unlock()
		totals = append(totals, total)
	})
	defer manager.CloseAll()

	hub := manager.GetOrCreateHub(StreamLeaderboard)
	if manager.GetOrCreateHub(StreamLeaderboard) != hub {
		t.Fatal("expected the same hub")
	}

	a, b := NewClient("a"), NewClient("b")
	hub.Register(a)
	hub.Register(b)
	hub.Unregister(a)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(totals) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 1}, totals)
}

func TestHubManager_GetHubMissing(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger(), nil)
	if manager.GetHub(StreamLeaderboard) != nil {
		t.Error("expected no hub before first subscriber")
	}
}
