package testutil

import (
	"context"
	"sync"

	"github.com/apexfest/checkin/internal/model"
)

// RecordingPublisher keeps every notification it is given
type RecordingPublisher struct {
	mu   sync.Mutex
	sent []model.Notification
	Err  error
}

func (p *RecordingPublisher) Publish(_ context.Context, n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.Err
}

// Sent returns a copy of the published notifications
func (p *RecordingPublisher) Sent() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Notification(nil), p.sent...)
}

// OfType returns the published notifications of one type
func (p *RecordingPublisher) OfType(t model.NotificationType) []model.Notification {
	var out []model.Notification
	for _, n := range p.Sent() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
