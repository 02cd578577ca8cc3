package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	mini    *miniredis.Miniredis
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.storage = NewWithClient(client, DefaultConfig())
	s.Storage = s.storage
	s.Seed()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestKeyLayout() {
	s.True(s.mini.Exists(subjectKey(storagetest.SubjectA)))
	s.True(s.mini.Exists(subjectShortKey("a1b2c3d4")))
	s.True(s.mini.Exists(hostShortKey("beef")))

	members, err := s.mini.ZMembers(subjectPrefixIndexKey())
	s.Require().NoError(err)
	s.Len(members, 3)
}

func (s *StorageSuite) TestPointsLiveInHash() {
	err := s.storage.InsertParticipationBatch(s.Ctx, "batch-1", storagetest.HostA, []*model.ParticipationRecord{{
		ID:         "b1",
		SubjectID:  storagetest.SubjectC,
		EventID:    storagetest.EventA,
		Outcome:    model.OutcomeWin,
		BatchID:    "batch-1",
		RecordedAt: storagetest.Epoch,
	}})
	s.Require().NoError(err)

	s.Equal("20", s.mini.HGet(subjectPointsKey(), string(storagetest.SubjectC)))

	stored, err := s.mini.Get(batchKey("batch-1"))
	s.Require().NoError(err)
	s.Equal(string(storagetest.HostA), stored)
}

func (s *StorageSuite) TestFailedCreateReleasesNothingOnCollision() {
	err := s.storage.CreateSubject(s.Ctx, &model.Subject{
		ID:        "c0ffee00-1111-4000-8000-000000000004",
		Category:  model.CategoryPrimary,
		CreatedAt: time.Now(),
	})
	s.ErrorIs(err, model.ErrPrefixCollision)

	claimedBy, err := s.mini.Get(subjectShortKey("c0ffee00"))
	s.Require().NoError(err)
	s.Equal(string(storagetest.SubjectC), claimedBy)
}

func (s *StorageSuite) TestStoreErrorWhenServerDown() {
	s.mini.Close()

	_, err := s.storage.GetSubject(s.Ctx, storagetest.SubjectA)
	s.ErrorIs(err, model.ErrStore)
	s.ErrorIs(s.storage.Ping(s.Ctx), model.ErrStore)
	s.mini = nil
}
