package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/shortid"
	"github.com/apexfest/checkin/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	subjects     map[model.SubjectID]*model.Subject
	subjectOrder []model.SubjectID
	subjectShort map[string]model.SubjectID

	hosts     map[model.HostID]*model.Host
	hostOrder []model.HostID
	hostShort map[string]model.HostID

	events     map[model.EventID]*model.Event
	eventOrder []model.EventID

	records []*model.ParticipationRecord
	latest  map[pairKey]*model.ParticipationRecord
	batches map[model.BatchID]model.HostID
}

type pairKey struct {
	subjectID model.SubjectID
	eventID   model.EventID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		subjects:     make(map[model.SubjectID]*model.Subject),
		subjectShort: make(map[string]model.SubjectID),
		hosts:        make(map[model.HostID]*model.Host),
		hostShort:    make(map[string]model.HostID),
		events:       make(map[model.EventID]*model.Event),
		latest:       make(map[pairKey]*model.ParticipationRecord),
		batches:      make(map[model.BatchID]model.HostID),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}

// Subject operations

func (s *Storage) CreateSubject(ctx context.Context, subject *model.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	short := shortid.Normalize(subject.ShortID())
	if _, taken := s.subjectShort[short]; taken {
		return model.ErrPrefixCollision
	}
	stored := *subject
	stored.Profile = maps.Clone(subject.Profile)
	s.subjects[subject.ID] = &stored
	s.subjectOrder = append(s.subjectOrder, subject.ID)
	s.subjectShort[short] = subject.ID
	return nil
}

func (s *Storage) GetSubject(ctx context.Context, id model.SubjectID) (*model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, model.ErrSubjectNotFound
	}
	out := *subject
	return &out, nil
}

func (s *Storage) FindSubjectsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Subject
	for _, id := range s.subjectOrder {
		if limit > 0 && len(result) >= limit {
			break
		}
		if shortid.Matches(string(id), prefix) {
			out := *s.subjects[id]
			result = append(result, &out)
		}
	}
	return result, nil
}

func (s *Storage) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Subject, 0, len(s.subjectOrder))
	for _, id := range s.subjectOrder {
		out := *s.subjects[id]
		result = append(result, &out)
	}
	return result, nil
}

// Host operations

func (s *Storage) CreateHost(ctx context.Context, host *model.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	short := shortid.Normalize(host.ShortID())
	if _, taken := s.hostShort[short]; taken {
		return model.ErrPrefixCollision
	}
	stored := *host
	s.hosts[host.ID] = &stored
	s.hostOrder = append(s.hostOrder, host.ID)
	s.hostShort[short] = host.ID
	return nil
}

func (s *Storage) GetHost(ctx context.Context, id model.HostID) (*model.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.hosts[id]
	if !ok {
		return nil, model.ErrHostNotFound
	}
	out := *host
	return &out, nil
}

func (s *Storage) FindHostsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Host
	for _, id := range s.hostOrder {
		if limit > 0 && len(result) >= limit {
			break
		}
		if shortid.Matches(string(id), prefix) {
			out := *s.hosts[id]
			result = append(result, &out)
		}
	}
	return result, nil
}

func (s *Storage) ListHosts(ctx context.Context) ([]*model.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Host, 0, len(s.hostOrder))
	for _, id := range s.hostOrder {
		out := *s.hosts[id]
		result = append(result, &out)
	}
	return result, nil
}

// Event operations

func (s *Storage) CreateEvent(ctx context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[event.HostID]; !ok {
		return model.ErrHostNotFound
	}
	stored := *event
	s.events[event.ID] = &stored
	s.eventOrder = append(s.eventOrder, event.ID)
	return nil
}

func (s *Storage) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	out := *event
	return &out, nil
}

func (s *Storage) ListEvents(ctx context.Context) ([]*model.Event, error) {
	return s.listEvents(func(*model.Event) bool { return true }), nil
}

func (s *Storage) ListEventsByHost(ctx context.Context, hostID model.HostID) ([]*model.Event, error) {
	return s.listEvents(func(e *model.Event) bool { return e.HostID == hostID }), nil
}

func (s *Storage) listEvents(keep func(*model.Event) bool) []*model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Event
	for _, id := range s.eventOrder {
		event := s.events[id]
		if keep(event) {
			out := *event
			result = append(result, &out)
		}
	}
	return result
}

// Participation operations

func (s *Storage) RecordIfNoneSince(ctx context.Context, rec *model.ParticipationRecord, since time.Time) (*model.ParticipationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blocking := s.latestSince(rec.SubjectID, rec.EventID, since); blocking != nil {
		return blocking, nil
	}
	if _, ok := s.subjects[rec.SubjectID]; !ok {
		return nil, model.ErrSubjectNotFound
	}
	if _, ok := s.events[rec.EventID]; !ok {
		return nil, model.ErrEventNotFound
	}
	s.appendRecord(rec)
	return nil, nil
}

func (s *Storage) LatestParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID, since time.Time) (*model.ParticipationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSince(subjectID, eventID, since), nil
}

func (s *Storage) InsertParticipationBatch(ctx context.Context, batchID model.BatchID, hostID model.HostID, records []*model.ParticipationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.batches[batchID]; seen {
		return model.ErrDuplicateBatch
	}
	for _, rec := range records {
		if _, ok := s.subjects[rec.SubjectID]; !ok {
			return model.ErrSubjectNotFound
		}
		if _, ok := s.events[rec.EventID]; !ok {
			return model.ErrEventNotFound
		}
	}

	s.batches[batchID] = hostID
	for _, rec := range records {
		s.appendRecord(rec)
		s.subjects[rec.SubjectID].Points += rec.Outcome.Score()
	}
	return nil
}

func (s *Storage) ListParticipationBySubject(ctx context.Context, subjectID model.SubjectID) ([]*model.ParticipationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.ParticipationRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].SubjectID == subjectID {
			out := *s.records[i]
			result = append(result, &out)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.After(result[j].RecordedAt)
	})
	return result, nil
}

func (s *Storage) ListParticipation(ctx context.Context) ([]*model.ParticipationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.ParticipationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out := *rec
		result = append(result, &out)
	}
	return result, nil
}

// latestSince must be called with the lock held
func (s *Storage) latestSince(subjectID model.SubjectID, eventID model.EventID, since time.Time) *model.ParticipationRecord {
	latest, ok := s.latest[pairKey{subjectID: subjectID, eventID: eventID}]
	if !ok || latest.RecordedAt.Before(since) {
		return nil
	}
	out := *latest
	return &out
}

// appendRecord must be called with the write lock held
func (s *Storage) appendRecord(rec *model.ParticipationRecord) {
	stored := *rec
	s.records = append(s.records, &stored)

	key := pairKey{subjectID: rec.SubjectID, eventID: rec.EventID}
	if prev, ok := s.latest[key]; !ok || !stored.RecordedAt.Before(prev.RecordedAt) {
		s.latest[key] = &stored
	}
}
