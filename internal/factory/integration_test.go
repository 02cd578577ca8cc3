package factory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/apexfest/checkin/internal/intake"
	"github.com/apexfest/checkin/internal/live"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/directory"
	"github.com/apexfest/checkin/internal/services/ledger"
	"github.com/apexfest/checkin/internal/testutil"
)

// ledgerSubmitter sends a queue batch straight to the ledger service
type ledgerSubmitter struct {
	ledger *ledger.Service
}

func (l ledgerSubmitter) Submit(ctx context.Context, b intake.Batch) (*intake.Receipt, error) {
	var candidates []ledger.Candidate
	for _, e := range b.Entries {
		for _, eventID := range e.EventIDs {
			candidates = append(candidates, ledger.Candidate{SubjectID: e.SubjectID, EventID: eventID, Outcome: e.Outcome})
		}
	}
	result, err := l.ledger.SubmitBatch(ctx, b.HostID, b.BatchID, candidates)
	if err != nil {
		return nil, err
	}
	return &intake.Receipt{Records: len(result.Records), Duplicate: result.Duplicate}, nil
}

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context

	host   *model.Host
	event1 *model.Event
	event2 *model.Event
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()

	var err error
	s.host, err = s.app.DirectoryService.CreateHost(s.ctx, "Chess Club")
	s.Require().NoError(err)
	s.event1, err = s.app.DirectoryService.CreateEvent(s.ctx, s.host.ID, "Blitz", "5 minute games")
	s.Require().NoError(err)
	s.event2, err = s.app.DirectoryService.CreateEvent(s.ctx, s.host.ID, "Puzzles", "")
	s.Require().NoError(err)
}

func (s *IntegrationSuite) register(name string) *model.Subject {
	subject, err := s.app.DirectoryService.RegisterSubject(s.ctx, directory.RegisterInput{
		DisplayName: name,
		Email:       fmt.Sprintf("%s@example.com", name),
		Category:    "primary",
	})
	s.Require().NoError(err)
	return subject
}

func (s *IntegrationSuite) openQueue() *intake.Queue {
	store := intake.NewFileStore(s.T().TempDir(), s.host.ID)
	q, err := intake.Open(s.host.ID, store, s.app.DirectoryService, ledgerSubmitter{s.app.LedgerService}, s.app.Random, testutil.NopLogger())
	s.Require().NoError(err)
	return q
}

// Test: a subject checks in, hits the cooldown, then checks in again once it passes
func (s *IntegrationSuite) TestSelfCheckInCooldown() {
	s.app.MockRandom.QueueUUID("a1b2c3d4-0000-4000-8000-00000000abcd")
	subject := s.register("ada")
	s.Equal("a1b2c3d4", subject.ShortID())

	first, err := s.app.LedgerService.RecordParticipation(s.ctx, subject.ID, s.event1.ID)
	s.Require().NoError(err)
	s.Equal(s.event1.ID, first.Record.EventID)

	s.app.MockClock.Advance(120 * time.Second)
	_, err = s.app.LedgerService.RecordParticipation(s.ctx, subject.ID, s.event1.ID)
	var cooldown *model.CooldownError
	s.Require().ErrorAs(err, &cooldown)
	s.Equal(int64(180), cooldown.RemainingSeconds)

	s.app.MockClock.Advance(181 * time.Second)
	_, err = s.app.LedgerService.RecordParticipation(s.ctx, subject.ID, s.event1.ID)
	s.Require().NoError(err)

	history, err := s.app.LedgerService.History(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
	s.Len(s.app.Notifications.OfType(model.NotificationParticipationRecord), 2)
}

// Test: the queue caps at fifteen and accepts entries again after a clear
func (s *IntegrationSuite) TestQueueCapacity() {
	q := s.openQueue()
	for i := range model.MaxQueueEntries {
		_, err := q.Add(s.ctx, s.register(fmt.Sprintf("s%d", i+1)).ShortID())
		s.Require().NoError(err)
	}

	extra := s.register("s16")
	_, err := q.Add(s.ctx, extra.ShortID())
	s.ErrorIs(err, model.ErrQueueFull)

	s.Require().NoError(q.Clear())
	s.Equal(0, q.Len())

	_, err = q.Add(s.ctx, extra.ShortID())
	s.NoError(err)
}

// Test: apply-to-all, per-entry outcome and submission through to the leaderboard
func (s *IntegrationSuite) TestQueueSubmissionFlow() {
	q := s.openQueue()
	s1 := s.register("s1")
	s2 := s.register("s2")
	s3 := s.register("s3")
	for _, subject := range []*model.Subject{s1, s2, s3} {
		_, err := q.Add(s.ctx, subject.ShortID())
		s.Require().NoError(err)
	}

	_, err := q.Toggle(s1.ShortID(), s.event1.ID)
	s.Require().NoError(err)
	_, err = q.Toggle(s1.ShortID(), s.event2.ID)
	s.Require().NoError(err)
	s.Require().NoError(q.ApplyToAll(s1.ShortID()))
	s.Require().NoError(q.SetOutcome(s1.ShortID(), model.OutcomeWin))

	for _, e := range q.Entries() {
		s.Equal([]model.EventID{s.event1.ID, s.event2.ID}, e.Selected)
	}

	result, err := q.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(6, result.Receipt.Records)
	s.False(result.Receipt.Duplicate)
	s.Equal(0, q.Len())

	standings, err := s.app.LeaderboardService.Subjects(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(standings, 3)
	s.Equal(s1.ID, standings[0].SubjectID)
	s.Equal(40, standings[0].Points)
	s.Equal(20, standings[1].Points)
	s.Equal(20, standings[2].Points)

	audit, err := s.app.LeaderboardService.Recompute(s.ctx)
	s.Require().NoError(err)
	for _, entry := range audit {
		s.True(entry.Consistent(), "subject %s", entry.SubjectID)
	}
}

// Test: a repeated batch id is acknowledged without writing twice
func (s *IntegrationSuite) TestDuplicateBatch() {
	subject := s.register("dup")
	batchID := model.BatchID("7d7e0d4c-1f7a-4e53-9a55-3f1a7b1c2d3e")
	candidates := []ledger.Candidate{{SubjectID: subject.ID, EventID: s.event1.ID, Outcome: model.OutcomeParticipate}}

	first, err := s.app.LedgerService.SubmitBatch(s.ctx, s.host.ID, batchID, candidates)
	s.Require().NoError(err)
	s.False(first.Duplicate)

	second, err := s.app.LedgerService.SubmitBatch(s.ctx, s.host.ID, batchID, candidates)
	s.Require().NoError(err)
	s.True(second.Duplicate)

	stored, err := s.app.DirectoryService.GetSubject(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(10, stored.Points)
}

// Test: live viewers are counted through the metrics observer and released on close
func (s *IntegrationSuite) TestCloseReleasesStreams() {
	hub := s.app.HubManager.GetOrCreateHub(live.StreamLeaderboard)
	s.NotNil(hub)
	s.NoError(s.app.Close())
}
