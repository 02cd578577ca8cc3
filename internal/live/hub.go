// Package live streams leaderboard changes to browsers over server-sent events.
package live

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Stream names a set of clients that receive the same events
type Stream string

// StreamLeaderboard carries leaderboard-update events
const StreamLeaderboard Stream = "leaderboard"

// Hub fans messages out to the clients of one stream
type Hub struct {
	stream   Stream
	clients  map[*Client]bool
	mu       sync.RWMutex
	logger   *slog.Logger
	onChange func(delta int)

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a new Hub for a stream. onChange, when set, is told about
// every client joining (+1) or leaving (-1).
func NewHub(stream Stream, logger *slog.Logger, onChange func(delta int)) *Hub {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &Hub{
		stream:     stream,
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("stream", string(stream))),
		onChange:   onChange,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Debug("sse hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.onChange(1)
			h.logger.Info("sse client registered",
				slog.String("viewer", client.viewer),
				slog.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; !ok {
				h.mu.Unlock()
				continue
			}
			delete(h.clients, client)
			close(client.send)
			total := len(h.clients)
			h.mu.Unlock()
			h.onChange(-1)
			h.logger.Info("sse client unregistered",
				slog.String("viewer", client.viewer),
				slog.Duration("connection_duration", time.Since(client.connectedAt)),
				slog.Int("total_clients", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			dropped := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					dropped++
				}
			}
			sent := len(h.clients) - dropped
			h.mu.RUnlock()
			if dropped > 0 {
				h.logger.Warn("sse broadcast partial failure",
					slog.Int("sent", sent),
					slog.Int("dropped", dropped))
			}

		case <-h.done:
			h.mu.Lock()
			total := len(h.clients)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.onChange(-total)
			h.logger.Debug("sse hub stopped", slog.Int("disconnected_clients", total))
			return
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a raw message for every client
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("sse broadcast dropped - hub buffer full")
	}
}

// BroadcastEvent sends a named SSE event
func (h *Hub) BroadcastEvent(eventName, data string) {
	h.Broadcast(formatSSEMessage(eventName, data))
}

// Close shuts down the hub and disconnects its clients
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// formatSSEMessage prefixes every line of data with "data: "
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: " + eventName + "\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// HubManager owns one hub per stream
type HubManager struct {
	hubs     map[Stream]*Hub
	mu       sync.Mutex
	logger   *slog.Logger
	observer func(total int)

	clients int
	countMu sync.Mutex
}

// NewHubManager creates a new HubManager. observer, when set, receives the
// total number of connected clients across all streams after every change.
func NewHubManager(logger *slog.Logger, observer func(total int)) *HubManager {
	if observer == nil {
		observer = func(int) {}
	}
	return &HubManager{
		hubs:     make(map[Stream]*Hub),
		logger:   logger.With(slog.String("component", "sse")),
		observer: observer,
	}
}

func (m *HubManager) track(delta int) {
	m.countMu.Lock()
	m.clients += delta
	total := m.clients
	m.countMu.Unlock()
	m.observer(total)
}

// GetOrCreateHub returns the hub for a stream, starting one if needed
func (m *HubManager) GetOrCreateHub(stream Stream) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[stream]; ok {
		return hub
	}
	hub := NewHub(stream, m.logger, m.track)
	m.hubs[stream] = hub
	go hub.Run()
	return hub
}

// GetHub returns the hub for a stream, or nil if none is running
func (m *HubManager) GetHub(stream Stream) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hubs[stream]
}

// CloseAll stops every hub; used at shutdown
func (m *HubManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for stream, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, stream)
	}
}
