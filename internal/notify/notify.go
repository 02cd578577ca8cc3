// Package notify delivers domain notifications (registrations, check-ins and
// submissions) to interested parties outside the request path.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/apexfest/checkin/internal/model"
)

// Publisher delivers a notification. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Nop discards every notification
type Nop struct{}

func (Nop) Publish(context.Context, model.Notification) error { return nil }

// LogPublisher writes notifications to a structured logger
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, n model.Notification) error {
	attrs := []slog.Attr{
		slog.String("type", string(n.Type)),
		slog.Time("occurred_at", n.OccurredAt),
	}
	if n.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", string(n.SubjectID)))
	}
	if n.HostID != "" {
		attrs = append(attrs, slog.String("host_id", string(n.HostID)))
	}
	if n.EventID != "" {
		attrs = append(attrs, slog.String("event_id", string(n.EventID)))
	}
	if n.BatchID != "" {
		attrs = append(attrs, slog.String("batch_id", string(n.BatchID)), slog.Int("records", n.Records))
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}

// Multi fans a notification out to several publishers
type Multi []Publisher

// Publish delivers to every publisher and joins their errors
func (m Multi) Publish(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send publishes n and logs instead of returning a failure
func Send(ctx context.Context, p Publisher, logger *slog.Logger, n model.Notification) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, n); err != nil {
		logger.Warn("failed to publish notification",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
	}
}
