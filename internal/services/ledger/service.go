// Package ledger records participation: self-service check-ins guarded by a
// cooldown, and all-or-nothing host submissions that award points.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apexfest/checkin/internal/dependencies/clock"
	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/metrics"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/notify"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/storage"
)

// Config holds ledger settings
type Config struct {
	Cooldown time.Duration
}

// DefaultConfig returns the default ledger configuration
func DefaultConfig() Config {
	return Config{Cooldown: model.DefaultCooldown}
}

// CheckIn is the result of a successful self-service check-in
type CheckIn struct {
	Record *model.ParticipationRecord
	Event  *model.Event
}

// Candidate is one (subject, event, outcome) triple of a host submission
type Candidate struct {
	SubjectID model.SubjectID
	EventID   model.EventID
	Outcome   model.Outcome
}

// SubmissionResult reports what a submission wrote.
// Duplicate is set when the batch id had already been applied; nothing was written again.
type SubmissionResult struct {
	BatchID   model.BatchID
	Records   []*model.ParticipationRecord
	Duplicate bool
}

// HistoryEntry is a participation record with its event details
type HistoryEntry struct {
	Record *model.ParticipationRecord
	Event  *model.Event
}

// Service is the participation ledger
type Service struct {
	storage   storage.Storage
	clock     clock.Clock
	random    random.Random
	publisher notify.Publisher
	metrics   *metrics.Manager
	logger    *slog.Logger
	cooldown  time.Duration
}

// New creates a new ledger service
func New(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	publisher notify.Publisher,
	metrics *metrics.Manager,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		storage:   storage,
		clock:     clock,
		random:    random,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cooldown:  cfg.Cooldown,
	}
}

// Cooldown returns the configured minimum gap between check-ins
func (s *Service) Cooldown() time.Duration {
	return s.cooldown
}

// RecordParticipation checks a subject into an event. A second check-in to
// the same event within the cooldown fails with *model.CooldownError and
// writes nothing. No points are awarded on this path.
func (s *Service) RecordParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID) (*CheckIn, error) {
	checkIn, err := s.recordParticipation(ctx, subjectID, eventID)
	s.metrics.CheckIn(checkInResult(err))
	return checkIn, err
}

func (s *Service) recordParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID) (*CheckIn, error) {
	eventID, err := qrpayload.ValidateEventID(string(eventID))
	if err != nil {
		return nil, err
	}

	event, err := s.storage.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &model.ParticipationRecord{
		ID:         model.RecordID(s.random.UUID()),
		SubjectID:  subjectID,
		EventID:    eventID,
		Outcome:    model.OutcomeNone,
		RecordedAt: now,
	}

	blocking, err := s.storage.RecordIfNoneSince(ctx, rec, now.Add(-s.cooldown))
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		cooldownErr := model.NewCooldownError(blocking.NextAllowedAt(s.cooldown), now)
		s.logger.Info("check-in rejected by cooldown",
			slog.String("subject_id", string(subjectID)),
			slog.String("event_id", string(eventID)),
			slog.Int64("remaining_seconds", cooldownErr.RemainingSeconds),
		)
		return nil, cooldownErr
	}

	s.logger.Info("participation recorded",
		slog.String("record_id", string(rec.ID)),
		slog.String("subject_id", string(subjectID)),
		slog.String("event_id", string(eventID)),
	)
	notify.Send(ctx, s.publisher, s.logger, model.Notification{
		Type:       model.NotificationParticipationRecord,
		OccurredAt: now,
		SubjectID:  subjectID,
		HostID:     event.HostID,
		EventID:    eventID,
	})

	return &CheckIn{Record: rec, Event: event}, nil
}

// CooldownRemaining reports the wait before subjectID may check into
// eventID again. It returns nil when a check-in would be accepted now.
func (s *Service) CooldownRemaining(ctx context.Context, subjectID model.SubjectID, eventID model.EventID) (*model.CooldownError, error) {
	eventID, err := qrpayload.ValidateEventID(string(eventID))
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	latest, err := s.storage.LatestParticipation(ctx, subjectID, eventID, now.Add(-s.cooldown))
	if err != nil || latest == nil {
		return nil, err
	}
	return model.NewCooldownError(latest.NextAllowedAt(s.cooldown), now), nil
}

// SubmitBatch applies a host's intake queue. Every candidate is written and
// scored, or none is. Resubmitting an applied batch id is reported as a
// duplicate success.
func (s *Service) SubmitBatch(ctx context.Context, hostID model.HostID, batchID model.BatchID, candidates []Candidate) (*SubmissionResult, error) {
	result, err := s.submitBatch(ctx, hostID, batchID, candidates)
	switch {
	case err != nil:
		s.metrics.Submission(submissionErrorResult(err), 0)
	case result.Duplicate:
		s.metrics.Submission(metrics.ResultDuplicate, 0)
	default:
		s.metrics.Submission(metrics.ResultSuccess, len(result.Records))
	}
	return result, err
}

func (s *Service) submitBatch(ctx context.Context, hostID model.HostID, batchID model.BatchID, candidates []Candidate) (*SubmissionResult, error) {
	if _, err := qrpayload.ValidateEventID(string(batchID)); err != nil {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidBatchID, batchID)
	}
	if len(candidates) == 0 {
		return nil, model.ErrNothingToSubmit
	}

	now := s.clock.Now()
	events := make(map[model.EventID]*model.Event)
	seen := make(map[Candidate]bool)
	records := make([]*model.ParticipationRecord, 0, len(candidates))

	for _, c := range candidates {
		if !c.Outcome.Valid() {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidOutcome, c.Outcome)
		}
		eventID, err := qrpayload.ValidateEventID(string(c.EventID))
		if err != nil {
			return nil, err
		}
		event, ok := events[eventID]
		if !ok {
			event, err = s.storage.GetEvent(ctx, eventID)
			if err != nil {
				return nil, err
			}
			events[eventID] = event
		}
		if event.HostID != hostID {
			return nil, fmt.Errorf("%w: %s", model.ErrEventNotOwned, eventID)
		}

		key := Candidate{SubjectID: c.SubjectID, EventID: eventID, Outcome: c.Outcome}
		if seen[key] {
			continue
		}
		seen[key] = true

		records = append(records, &model.ParticipationRecord{
			ID:         model.RecordID(s.random.UUID()),
			SubjectID:  c.SubjectID,
			EventID:    eventID,
			Outcome:    c.Outcome,
			BatchID:    batchID,
			RecordedAt: now,
		})
	}

	err := s.storage.InsertParticipationBatch(ctx, batchID, hostID, records)
	if errors.Is(err, model.ErrDuplicateBatch) {
		s.logger.Info("duplicate batch ignored",
			slog.String("batch_id", string(batchID)),
			slog.String("host_id", string(hostID)),
		)
		return &SubmissionResult{BatchID: batchID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch submitted",
		slog.String("batch_id", string(batchID)),
		slog.String("host_id", string(hostID)),
		slog.Int("records", len(records)),
	)
	notify.Send(ctx, s.publisher, s.logger, model.Notification{
		Type:       model.NotificationBatchSubmitted,
		OccurredAt: now,
		HostID:     hostID,
		BatchID:    batchID,
		Records:    len(records),
	})

	return &SubmissionResult{BatchID: batchID, Records: records}, nil
}

// History returns a subject's participation, newest first, with event details
func (s *Service) History(ctx context.Context, subjectID model.SubjectID) ([]HistoryEntry, error) {
	records, err := s.storage.ListParticipationBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	events := make(map[model.EventID]*model.Event)
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		event, ok := events[rec.EventID]
		if !ok {
			event, err = s.storage.GetEvent(ctx, rec.EventID)
			if err != nil {
				return nil, err
			}
			events[rec.EventID] = event
		}
		entries = append(entries, HistoryEntry{Record: rec, Event: event})
	}
	return entries, nil
}

func checkInResult(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	switch model.KindOf(err) {
	case model.KindCooldown:
		return metrics.ResultCooldown
	case model.KindNotFound:
		return metrics.ResultNotFound
	case model.KindValidation:
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}

func submissionErrorResult(err error) string {
	switch model.KindOf(err) {
	case model.KindValidation, model.KindAuth:
		return metrics.ResultInvalid
	case model.KindNotFound:
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}
