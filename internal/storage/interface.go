package storage

import (
	"context"
	"time"

	"github.com/apexfest/checkin/internal/model"
)

// Storage defines the interface for data persistence.
// Implementations return model sentinels for missing entities and wrap
// backend failures with model.ErrStore.
type Storage interface {
	// Subject operations.
	// CreateSubject fails with model.ErrPrefixCollision when another subject
	// already owns the same 8-character short id.
	CreateSubject(ctx context.Context, subject *model.Subject) error
	GetSubject(ctx context.Context, id model.SubjectID) (*model.Subject, error)
	FindSubjectsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Subject, error)
	ListSubjects(ctx context.Context) ([]*model.Subject, error)

	// Host operations; short ids are 4 characters
	CreateHost(ctx context.Context, host *model.Host) error
	GetHost(ctx context.Context, id model.HostID) (*model.Host, error)
	FindHostsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Host, error)
	ListHosts(ctx context.Context) ([]*model.Host, error)

	// Event operations
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	ListEvents(ctx context.Context) ([]*model.Event, error)
	ListEventsByHost(ctx context.Context, hostID model.HostID) ([]*model.Event, error)

	// RecordIfNoneSince inserts rec unless the same subject already has a
	// record for the same event at or after since. In that case nothing is
	// written and the most recent blocking record is returned. The check and
	// the insert are atomic.
	RecordIfNoneSince(ctx context.Context, rec *model.ParticipationRecord, since time.Time) (*model.ParticipationRecord, error)

	// LatestParticipation returns the most recent record for the pair at or
	// after since, or nil when there is none.
	LatestParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID, since time.Time) (*model.ParticipationRecord, error)

	// InsertParticipationBatch stores every record and credits each subject
	// with the outcome score, or does nothing at all. A batch id that was
	// already stored fails with model.ErrDuplicateBatch.
	InsertParticipationBatch(ctx context.Context, batchID model.BatchID, hostID model.HostID, records []*model.ParticipationRecord) error

	// ListParticipationBySubject returns a subject's records newest first
	ListParticipationBySubject(ctx context.Context, subjectID model.SubjectID) ([]*model.ParticipationRecord, error)

	// ListParticipation returns every record in insertion order
	ListParticipation(ctx context.Context) ([]*model.ParticipationRecord, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	Close() error
}
