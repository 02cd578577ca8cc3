// Package intake implements a host's client-held queue of scanned subjects.
// Entries are annotated locally and reach the server only through Submit.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/shortid"
)

// Entry is one scanned subject with the host's annotations
type Entry struct {
	ShortID     string          `json:"short_id"`
	SubjectID   model.SubjectID `json:"subject_id"`
	Name        string          `json:"name"`
	Affiliation string          `json:"affiliation"`
	Points      int             `json:"points"`
	Category    model.Category  `json:"category"`
	Selected    []model.EventID `json:"selected_event_ids"`
	Outcome     model.Outcome   `json:"outcome"`
}

// IsSelected reports whether eventID is among the entry's selections
func (e *Entry) IsSelected(eventID model.EventID) bool {
	return slices.Contains(e.Selected, eventID)
}

func (e Entry) clone() Entry {
	e.Selected = slices.Clone(e.Selected)
	return e
}

// State is the persisted form of a queue
type State struct {
	HostID  model.HostID  `json:"host_id"`
	BatchID model.BatchID `json:"batch_id"`
	Entries []Entry       `json:"entries"`
}

func (s *State) clone() *State {
	out := &State{HostID: s.HostID, BatchID: s.BatchID, Entries: make([]Entry, len(s.Entries))}
	for i, e := range s.Entries {
		out.Entries[i] = e.clone()
	}
	return out
}

// Resolver turns a short id into a subject
type Resolver interface {
	ResolveSubject(ctx context.Context, short string) (*model.Subject, error)
}

// BatchEntry is one subject's share of a submission
type BatchEntry struct {
	SubjectID model.SubjectID `json:"subject_id"`
	EventIDs  []model.EventID `json:"event_ids"`
	Outcome   model.Outcome   `json:"outcome"`
}

// Batch is what Submit sends to the ledger
type Batch struct {
	HostID  model.HostID  `json:"-"`
	BatchID model.BatchID `json:"batch_id"`
	Entries []BatchEntry  `json:"entries"`
}

// Records counts the participation records a batch creates
func (b Batch) Records() int {
	n := 0
	for _, e := range b.Entries {
		n += len(e.EventIDs)
	}
	return n
}

// Receipt is the ledger's answer to a submission
type Receipt struct {
	Records   int  `json:"records"`
	Duplicate bool `json:"duplicate"`
}

// Submitter delivers a batch to the ledger
type Submitter interface {
	Submit(ctx context.Context, batch Batch) (*Receipt, error)
}

// Store persists queue state between runs
type Store interface {
	// Load returns nil without error when nothing has been saved
	Load() (*State, error)
	Save(state *State) error
	Clear() error
}

// SubmitResult reports a successful submission.
// Skipped lists entries that had no events selected.
type SubmitResult struct {
	BatchID model.BatchID
	Receipt *Receipt
	Skipped []string
}

// Queue is a host's intake queue. Every mutation is saved before it is
// visible, and the batch id changes with every mutation.
type Queue struct {
	mu        sync.Mutex
	state     *State
	store     Store
	resolver  Resolver
	submitter Submitter
	random    random.Random
	logger    *slog.Logger
}

// Open loads the saved queue for hostID, or starts an empty one
func Open(hostID model.HostID, store Store, resolver Resolver, submitter Submitter, random random.Random, logger *slog.Logger) (*Queue, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state != nil && state.HostID != hostID {
		return nil, fmt.Errorf("%w: %s", model.ErrQueueOwner, state.HostID)
	}

	q := &Queue{
		state:     state,
		store:     store,
		resolver:  resolver,
		submitter: submitter,
		random:    random,
		logger:    logger,
	}
	if q.state == nil {
		q.state = q.emptyState(hostID)
	}
	return q, nil
}

func (q *Queue) emptyState(hostID model.HostID) *State {
	return &State{HostID: hostID, BatchID: model.BatchID(q.random.UUID()), Entries: []Entry{}}
}

// HostID returns the queue owner
func (q *Queue) HostID() model.HostID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.HostID
}

// BatchID returns the idempotency key the next Submit will use
func (q *Queue) BatchID() model.BatchID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.BatchID
}

// Len returns the number of queued subjects
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state.Entries)
}

// Entries returns a copy of the queue in insertion order
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.clone().Entries
}

// Add resolves a scanned badge payload and appends the subject with the
// default outcome. Nothing changes when the queue is full or the subject is
// already queued.
func (q *Queue) Add(ctx context.Context, payload string) (*Entry, error) {
	short, err := qrpayload.ParseSubject(payload)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.state.Entries) >= model.MaxQueueEntries {
		return nil, model.ErrQueueFull
	}
	if q.contains(func(e *Entry) bool { return shortid.Overlaps(e.ShortID, short) }) {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateEntry, short)
	}

	subject, err := q.resolver.ResolveSubject(ctx, short)
	if err != nil {
		return nil, err
	}
	if q.contains(func(e *Entry) bool { return e.SubjectID == subject.ID }) {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateEntry, short)
	}

	entry := Entry{
		ShortID:     subject.ShortID(),
		SubjectID:   subject.ID,
		Name:        subject.DisplayName,
		Affiliation: subject.Affiliation,
		Points:      subject.Points,
		Category:    subject.Category,
		Selected:    []model.EventID{},
		Outcome:     model.OutcomeParticipate,
	}

	next := q.state.clone()
	next.Entries = append(next.Entries, entry)
	if err := q.commit(next); err != nil {
		return nil, err
	}

	q.logger.Debug("subject queued", slog.String("short_id", entry.ShortID), slog.Int("queue_len", len(next.Entries)))
	out := entry.clone()
	return &out, nil
}

// Toggle flips eventID in the entry's selections. A short id that matches
// no entry is a no-op and returns a nil entry.
func (q *Queue) Toggle(short string, eventID model.EventID) (*Entry, error) {
	eventID, err := qrpayload.ValidateEventID(string(eventID))
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.find(short)
	if i < 0 {
		return nil, nil
	}

	next := q.state.clone()
	entry := &next.Entries[i]
	if j := slices.Index(entry.Selected, eventID); j >= 0 {
		entry.Selected = slices.Delete(entry.Selected, j, j+1)
	} else {
		entry.Selected = append(entry.Selected, eventID)
	}
	if err := q.commit(next); err != nil {
		return nil, err
	}

	out := next.Entries[i].clone()
	return &out, nil
}

// ApplyToAll overwrites every entry's selections with those of source.
// Callers confirm with the user first; the overwrite cannot be undone.
func (q *Queue) ApplyToAll(source string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.find(source)
	if i < 0 {
		return fmt.Errorf("%w: %s", model.ErrEntryNotFound, shortid.Normalize(source))
	}
	if len(q.state.Entries[i].Selected) == 0 {
		return model.ErrNothingToApply
	}

	next := q.state.clone()
	for j := range next.Entries {
		next.Entries[j].Selected = slices.Clone(q.state.Entries[i].Selected)
	}
	return q.commit(next)
}

// SetOutcome replaces the entry's outcome
func (q *Queue) SetOutcome(short string, outcome model.Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidOutcome, outcome)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.find(short)
	if i < 0 {
		return fmt.Errorf("%w: %s", model.ErrEntryNotFound, shortid.Normalize(short))
	}

	next := q.state.clone()
	next.Entries[i].Outcome = outcome
	return q.commit(next)
}

// Submit sends one candidate per selected event of every entry. On failure
// the queue and its saved state are left exactly as they were; on success
// the queue is emptied.
func (q *Queue) Submit(ctx context.Context) (*SubmitResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.state.Entries) == 0 {
		return nil, model.ErrEmptyQueue
	}

	batch := Batch{HostID: q.state.HostID, BatchID: q.state.BatchID}
	var skipped []string
	for _, e := range q.state.Entries {
		if len(e.Selected) == 0 {
			skipped = append(skipped, e.ShortID)
			continue
		}
		batch.Entries = append(batch.Entries, BatchEntry{
			SubjectID: e.SubjectID,
			EventIDs:  slices.Clone(e.Selected),
			Outcome:   e.Outcome,
		})
	}
	if len(batch.Entries) == 0 {
		return nil, model.ErrNothingToSubmit
	}

	receipt, err := q.submitter.Submit(ctx, batch)
	if err != nil {
		q.logger.Warn("submission failed, queue kept",
			slog.String("batch_id", string(batch.BatchID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	q.logger.Info("batch submitted",
		slog.String("batch_id", string(batch.BatchID)),
		slog.Int("records", receipt.Records),
		slog.Bool("duplicate", receipt.Duplicate),
	)
	result := &SubmitResult{BatchID: batch.BatchID, Receipt: receipt, Skipped: skipped}

	q.state = q.emptyState(q.state.HostID)
	if err := q.store.Clear(); err != nil {
		return result, fmt.Errorf("batch submitted but saved queue was not cleared: %w", err)
	}
	return result, nil
}

// Clear discards every entry
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Clear(); err != nil {
		return err
	}
	q.state = q.emptyState(q.state.HostID)
	return nil
}

// commit saves next under a fresh batch id and makes it current.
// Must be called with the lock held.
func (q *Queue) commit(next *State) error {
	next.BatchID = model.BatchID(q.random.UUID())
	if err := q.store.Save(next); err != nil {
		return err
	}
	q.state = next
	return nil
}

// find returns the index of the single entry short identifies, or -1.
// Must be called with the lock held.
func (q *Queue) find(short string) int {
	found := -1
	for i := range q.state.Entries {
		if shortid.Matches(string(q.state.Entries[i].SubjectID), short) {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}

// contains must be called with the lock held
func (q *Queue) contains(match func(*Entry) bool) bool {
	for i := range q.state.Entries {
		if match(&q.state.Entries[i]) {
			return true
		}
	}
	return false
}
