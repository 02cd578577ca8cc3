// Package storagetest holds the behaviour every storage backend must share.
// Backend packages embed Suite in their own test suites.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/storage"
)

// Fixed identifiers used by the shared tests
const (
	SubjectA = model.SubjectID("a1b2c3d4-0000-4000-8000-000000000001")
	SubjectB = model.SubjectID("a1b2ffff-0000-4000-8000-000000000002")
	SubjectC = model.SubjectID("c0ffee00-0000-4000-8000-000000000003")
	HostA    = model.HostID("h0a1-0000-4000-8000-000000000001")
	HostB    = model.HostID("beef-0000-4000-8000-000000000002")
	EventA   = model.EventID("06a33f6c-8434-4478-ae66-9d25c069a660")
	EventB   = model.EventID("1f0e2d3c-4b5a-4697-8877-665544332211")
)

// Epoch is the base time of the shared tests, at millisecond precision
var Epoch = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Suite runs the backend-independent storage contract.
// Embedders set Storage in their SetupTest before calling Seed.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

// Seed creates three subjects, two hosts and one event per host
func (s *Suite) Seed() {
	s.Ctx = context.Background()

	for i, id := range []model.SubjectID{SubjectA, SubjectB, SubjectC} {
		s.Require().NoError(s.Storage.CreateSubject(s.Ctx, &model.Subject{
			ID:          id,
			DisplayName: "Subject " + string(rune('A'+i)),
			Affiliation: "North High",
			Email:       "s@example.com",
			Category:    model.CategoryPrimary,
			CreatedAt:   Epoch.Add(time.Duration(i) * time.Second),
		}))
	}
	s.Require().NoError(s.Storage.CreateHost(s.Ctx, &model.Host{ID: HostA, DisplayName: "Robotics", CreatedAt: Epoch}))
	s.Require().NoError(s.Storage.CreateHost(s.Ctx, &model.Host{ID: HostB, DisplayName: "Chess", CreatedAt: Epoch}))
	s.Require().NoError(s.Storage.CreateEvent(s.Ctx, &model.Event{ID: EventA, HostID: HostA, Name: "Line follower", Description: "Race", CreatedAt: Epoch}))
	s.Require().NoError(s.Storage.CreateEvent(s.Ctx, &model.Event{ID: EventB, HostID: HostB, Name: "Blitz", Description: "5 minute games", CreatedAt: Epoch}))
}

func record(id string, subjectID model.SubjectID, eventID model.EventID, outcome model.Outcome, at time.Time) *model.ParticipationRecord {
	return &model.ParticipationRecord{
		ID:         model.RecordID(id),
		SubjectID:  subjectID,
		EventID:    eventID,
		Outcome:    outcome,
		RecordedAt: at,
	}
}

func (s *Suite) TestPing() {
	s.NoError(s.Storage.Ping(s.Ctx))
}

// Subject tests

func (s *Suite) TestGetSubject() {
	subject, err := s.Storage.GetSubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Equal("Subject A", subject.DisplayName)
	s.Equal("North High", subject.Affiliation)
	s.Equal(model.CategoryPrimary, subject.Category)
	s.Equal(0, subject.Points)
	s.Nil(subject.Profile)
	s.True(Epoch.Equal(subject.CreatedAt))
}

func (s *Suite) TestSubjectProfileRoundTrip() {
	id := model.SubjectID("d00d1e55-0000-4000-8000-000000000004")
	s.Require().NoError(s.Storage.CreateSubject(s.Ctx, &model.Subject{
		ID:          id,
		DisplayName: "Subject D",
		Affiliation: "City College",
		Category:    model.CategorySecondary,
		Profile:     map[string]string{model.ProfileCRN: "CS-2231"},
		CreatedAt:   Epoch,
	}))

	subject, err := s.Storage.GetSubject(s.Ctx, id)
	s.Require().NoError(err)
	s.Equal(map[string]string{"crn": "CS-2231"}, subject.Profile)

	found, err := s.Storage.FindSubjectsByPrefix(s.Ctx, "d00d", 0)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("CS-2231", found[0].Profile[model.ProfileCRN])
}

func (s *Suite) TestGetSubjectNotFound() {
	_, err := s.Storage.GetSubject(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrSubjectNotFound)
}

func (s *Suite) TestCreateSubjectRejectsShortIDCollision() {
	err := s.Storage.CreateSubject(s.Ctx, &model.Subject{
		ID:          "a1b2c3d4-9999-4000-8000-000000000009",
		DisplayName: "Clash",
		Category:    model.CategorySecondary,
		CreatedAt:   Epoch,
	})
	s.ErrorIs(err, model.ErrPrefixCollision)

	subjects, err := s.Storage.ListSubjects(s.Ctx)
	s.Require().NoError(err)
	s.Len(subjects, 3)
}

func (s *Suite) TestFindSubjectsByPrefix() {
	found, err := s.Storage.FindSubjectsByPrefix(s.Ctx, "a1b2", 0)
	s.Require().NoError(err)
	s.Len(found, 2)

	found, err = s.Storage.FindSubjectsByPrefix(s.Ctx, "A1B2C3D4", 2)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(SubjectA, found[0].ID)

	found, err = s.Storage.FindSubjectsByPrefix(s.Ctx, "a1b2", 1)
	s.Require().NoError(err)
	s.Len(found, 1)

	found, err = s.Storage.FindSubjectsByPrefix(s.Ctx, "ffff", 0)
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *Suite) TestListSubjectsInCreationOrder() {
	subjects, err := s.Storage.ListSubjects(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(subjects, 3)
	s.Equal(SubjectA, subjects[0].ID)
	s.Equal(SubjectB, subjects[1].ID)
	s.Equal(SubjectC, subjects[2].ID)
}

// Host and event tests

func (s *Suite) TestHosts() {
	host, err := s.Storage.GetHost(s.Ctx, HostA)
	s.Require().NoError(err)
	s.Equal("Robotics", host.DisplayName)

	_, err = s.Storage.GetHost(s.Ctx, "nope")
	s.ErrorIs(err, model.ErrHostNotFound)

	found, err := s.Storage.FindHostsByPrefix(s.Ctx, "BEEF", 2)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(HostB, found[0].ID)

	hosts, err := s.Storage.ListHosts(s.Ctx)
	s.Require().NoError(err)
	s.Len(hosts, 2)
}

func (s *Suite) TestCreateHostRejectsShortIDCollision() {
	err := s.Storage.CreateHost(s.Ctx, &model.Host{ID: "beef-1111-4000-8000-000000000003", DisplayName: "Clash", CreatedAt: Epoch})
	s.ErrorIs(err, model.ErrPrefixCollision)
}

func (s *Suite) TestEvents() {
	event, err := s.Storage.GetEvent(s.Ctx, EventA)
	s.Require().NoError(err)
	s.Equal(HostA, event.HostID)
	s.Equal("Line follower", event.Name)

	_, err = s.Storage.GetEvent(s.Ctx, "00000000-0000-4000-8000-000000000000")
	s.ErrorIs(err, model.ErrEventNotFound)

	all, err := s.Storage.ListEvents(s.Ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	byHost, err := s.Storage.ListEventsByHost(s.Ctx, HostB)
	s.Require().NoError(err)
	s.Require().Len(byHost, 1)
	s.Equal(EventB, byHost[0].ID)
}

func (s *Suite) TestCreateEventForUnknownHost() {
	err := s.Storage.CreateEvent(s.Ctx, &model.Event{ID: "2f0e2d3c-4b5a-4697-8877-665544332211", HostID: "nope", Name: "x", CreatedAt: Epoch})
	s.ErrorIs(err, model.ErrHostNotFound)
}

// Participation tests

func (s *Suite) TestRecordIfNoneSinceBlocksWithinWindow() {
	first := record("r1", SubjectA, EventA, model.OutcomeNone, Epoch)
	blocking, err := s.Storage.RecordIfNoneSince(s.Ctx, first, Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Nil(blocking)

	now := Epoch.Add(2 * time.Minute)
	second := record("r2", SubjectA, EventA, model.OutcomeNone, now)
	blocking, err = s.Storage.RecordIfNoneSince(s.Ctx, second, now.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Require().NotNil(blocking)
	s.Equal(model.RecordID("r1"), blocking.ID)
	s.True(Epoch.Equal(blocking.RecordedAt))

	records, err := s.Storage.ListParticipation(s.Ctx)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *Suite) TestRecordIfNoneSinceAllowsAfterWindow() {
	_, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r1", SubjectA, EventA, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)

	now := Epoch.Add(301 * time.Second)
	blocking, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r2", SubjectA, EventA, model.OutcomeNone, now), now.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Nil(blocking)

	latest, err := s.Storage.LatestParticipation(s.Ctx, SubjectA, EventA, now.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(model.RecordID("r2"), latest.ID)
}

func (s *Suite) TestRecordIfNoneSinceIsPerPair() {
	_, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r1", SubjectA, EventA, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)

	blocking, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r2", SubjectA, EventB, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Nil(blocking)

	blocking, err = s.Storage.RecordIfNoneSince(s.Ctx, record("r3", SubjectB, EventA, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	s.Nil(blocking)
}

func (s *Suite) TestRecordIfNoneSinceConcurrentWritesOnce() {
	const callers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		written int
		blocked int
		errs    []error
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := record(fmt.Sprintf("race-%02d", i), SubjectA, EventA, model.OutcomeNone, Epoch)
			blocking, err := s.Storage.RecordIfNoneSince(s.Ctx, rec, Epoch.Add(-model.DefaultCooldown))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case blocking == nil:
				written++
			default:
				blocked++
			}
		}()
	}
	wg.Wait()

	s.Empty(errs)
	s.Equal(1, written)
	s.Equal(callers-1, blocked)

	records, err := s.Storage.ListParticipationBySubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *Suite) TestRecordIfNoneSinceDoesNotChangePoints() {
	_, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r1", SubjectA, EventA, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)

	subject, err := s.Storage.GetSubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Equal(0, subject.Points)
}

func (s *Suite) TestLatestParticipationNone() {
	latest, err := s.Storage.LatestParticipation(s.Ctx, SubjectA, EventA, Epoch)
	s.Require().NoError(err)
	s.Nil(latest)
}

func (s *Suite) TestInsertParticipationBatch() {
	batch := []*model.ParticipationRecord{
		record("b1", SubjectA, EventA, model.OutcomeWin, Epoch),
		record("b2", SubjectA, EventB, model.OutcomeWin, Epoch),
		record("b3", SubjectB, EventA, model.OutcomeSkipped, Epoch),
	}
	for _, rec := range batch {
		rec.BatchID = "batch-1"
	}

	s.Require().NoError(s.Storage.InsertParticipationBatch(s.Ctx, "batch-1", HostA, batch))

	a, err := s.Storage.GetSubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Equal(40, a.Points)

	b, err := s.Storage.GetSubject(s.Ctx, SubjectB)
	s.Require().NoError(err)
	s.Equal(10, b.Points)

	records, err := s.Storage.ListParticipation(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(model.RecordID("b1"), records[0].ID)
	s.Equal(model.OutcomeWin, records[0].Outcome)
	s.Equal(model.BatchID("batch-1"), records[0].BatchID)
}

func (s *Suite) TestInsertParticipationBatchRejectsDuplicate() {
	batch := []*model.ParticipationRecord{record("b1", SubjectA, EventA, model.OutcomeWin, Epoch)}
	s.Require().NoError(s.Storage.InsertParticipationBatch(s.Ctx, "batch-1", HostA, batch))

	retry := []*model.ParticipationRecord{record("b2", SubjectA, EventA, model.OutcomeWin, Epoch)}
	err := s.Storage.InsertParticipationBatch(s.Ctx, "batch-1", HostA, retry)
	s.ErrorIs(err, model.ErrDuplicateBatch)

	subject, err := s.Storage.GetSubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Equal(20, subject.Points)

	records, err := s.Storage.ListParticipation(s.Ctx)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *Suite) TestInsertParticipationBatchIsAllOrNothing() {
	batch := []*model.ParticipationRecord{
		record("b1", SubjectA, EventA, model.OutcomeWin, Epoch),
		record("b2", SubjectB, "00000000-0000-4000-8000-000000000000", model.OutcomeWin, Epoch),
	}
	err := s.Storage.InsertParticipationBatch(s.Ctx, "batch-1", HostA, batch)
	s.ErrorIs(err, model.ErrEventNotFound)

	records, err := s.Storage.ListParticipation(s.Ctx)
	s.Require().NoError(err)
	s.Empty(records)

	subject, err := s.Storage.GetSubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Equal(0, subject.Points)

	// the failed batch id was not consumed
	s.NoError(s.Storage.InsertParticipationBatch(s.Ctx, "batch-1", HostA, batch[:1]))
}

func (s *Suite) TestListParticipationBySubjectNewestFirst() {
	_, err := s.Storage.RecordIfNoneSince(s.Ctx, record("r1", SubjectA, EventA, model.OutcomeNone, Epoch), Epoch.Add(-model.DefaultCooldown))
	s.Require().NoError(err)
	_, err = s.Storage.RecordIfNoneSince(s.Ctx, record("r2", SubjectA, EventB, model.OutcomeNone, Epoch.Add(time.Minute)), Epoch)
	s.Require().NoError(err)
	_, err = s.Storage.RecordIfNoneSince(s.Ctx, record("r3", SubjectB, EventB, model.OutcomeNone, Epoch.Add(2*time.Minute)), Epoch)
	s.Require().NoError(err)

	records, err := s.Storage.ListParticipationBySubject(s.Ctx, SubjectA)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(model.RecordID("r2"), records[0].ID)
	s.Equal(model.RecordID("r1"), records[1].ID)
}
