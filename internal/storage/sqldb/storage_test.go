package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	st, err := New(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	s.Require().NoError(err)

	s.storage = st
	s.Storage = st
	s.Seed()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *StorageSuite) TestSchemaIsIdempotent() {
	s.NoError(createSchema(s.Ctx, s.storage.db, s.storage.dialect))

	subjects, err := s.storage.ListSubjects(s.Ctx)
	s.Require().NoError(err)
	s.Len(subjects, 3)
}

func (s *StorageSuite) TestPrefixWildcardsAreIgnored() {
	found, err := s.storage.FindSubjectsByPrefix(s.Ctx, "%", 0)
	s.Require().NoError(err)
	s.Empty(found)

	found, err = s.storage.FindSubjectsByPrefix(s.Ctx, "a1b2_3d4", 0)
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *StorageSuite) TestTimestampsRoundTripAtMillisecondPrecision() {
	event, err := s.storage.GetEvent(s.Ctx, storagetest.EventA)
	s.Require().NoError(err)
	s.True(storagetest.Epoch.Equal(event.CreatedAt))
}

func (s *StorageSuite) TestBatchCreatedAtIsSubmissionTime() {
	at := storagetest.Epoch.Add(90 * time.Minute)
	s.Require().NoError(s.storage.InsertParticipationBatch(s.Ctx, "b1", storagetest.HostA, []*model.ParticipationRecord{{
		ID:         "r1",
		SubjectID:  storagetest.SubjectA,
		EventID:    storagetest.EventA,
		Outcome:    model.OutcomeWin,
		BatchID:    "b1",
		RecordedAt: at,
	}}))

	var createdAt int64
	s.Require().NoError(s.storage.db.QueryRowContext(s.Ctx, `SELECT created_at FROM participation_batch WHERE id = $1`, "b1").Scan(&createdAt))
	s.True(at.Equal(fromMillis(createdAt)))
}

func (s *StorageSuite) TestClosedDatabaseIsStoreError() {
	s.Require().NoError(s.storage.Close())

	_, err := s.storage.GetSubject(s.Ctx, storagetest.SubjectA)
	s.ErrorIs(err, model.ErrStore)
	s.storage = nil
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
}
