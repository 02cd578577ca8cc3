package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/shortid"
	"github.com/apexfest/checkin/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStore, err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return model.StoreFailure(s.client.Ping(ctx).Err())
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Subject operations

func (s *Storage) CreateSubject(ctx context.Context, subject *model.Subject) error {
	stored := *subject
	stored.Points = 0
	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	id := string(subject.ID)
	err = s.claimShortID(ctx, subjectShortKey(shortid.Normalize(subject.ShortID())), id, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, subjectKey(subject.ID), data, 0)
		pipe.HSet(ctx, subjectPointsKey(), id, subject.Points)
		pipe.ZAdd(ctx, subjectPrefixIndexKey(), redis.Z{Score: 0, Member: shortid.Normalize(id)})
		pipe.RPush(ctx, subjectsKey(), id)
	})
	return model.StoreFailure(err)
}

func (s *Storage) GetSubject(ctx context.Context, id model.SubjectID) (*model.Subject, error) {
	subjects, err := s.loadSubjects(ctx, []string{string(id)})
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return subjects[0], nil
}

func (s *Storage) FindSubjectsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Subject, error) {
	ids, err := s.rangeByPrefix(ctx, subjectPrefixIndexKey(), prefix, limit)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	subjects, err := s.loadSubjects(ctx, ids)
	return subjects, model.StoreFailure(err)
}

func (s *Storage) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	ids, err := s.client.LRange(ctx, subjectsKey(), 0, -1).Result()
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	subjects, err := s.loadSubjects(ctx, ids)
	return subjects, model.StoreFailure(err)
}

// Host operations

func (s *Storage) CreateHost(ctx context.Context, host *model.Host) error {
	data, err := json.Marshal(host)
	if err != nil {
		return err
	}

	id := string(host.ID)
	err = s.claimShortID(ctx, hostShortKey(shortid.Normalize(host.ShortID())), id, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, hostKey(host.ID), data, 0)
		pipe.ZAdd(ctx, hostPrefixIndexKey(), redis.Z{Score: 0, Member: shortid.Normalize(id)})
		pipe.RPush(ctx, hostsKey(), id)
	})
	return model.StoreFailure(err)
}

func (s *Storage) GetHost(ctx context.Context, id model.HostID) (*model.Host, error) {
	hosts, err := loadJSON[model.Host](ctx, s.client, []string{hostKey(id)}, model.ErrHostNotFound)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return hosts[0], nil
}

func (s *Storage) FindHostsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Host, error) {
	ids, err := s.rangeByPrefix(ctx, hostPrefixIndexKey(), prefix, limit)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	hosts, err := loadJSON[model.Host](ctx, s.client, mapKeys(ids, func(id string) string { return hostKey(model.HostID(id)) }), model.ErrHostNotFound)
	return hosts, model.StoreFailure(err)
}

func (s *Storage) ListHosts(ctx context.Context) ([]*model.Host, error) {
	ids, err := s.client.LRange(ctx, hostsKey(), 0, -1).Result()
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	hosts, err := loadJSON[model.Host](ctx, s.client, mapKeys(ids, func(id string) string { return hostKey(model.HostID(id)) }), model.ErrHostNotFound)
	return hosts, model.StoreFailure(err)
}

// Event operations

func (s *Storage) CreateEvent(ctx context.Context, event *model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	exists, err := s.client.Exists(ctx, hostKey(event.HostID)).Result()
	if err != nil {
		return model.StoreFailure(err)
	}
	if exists == 0 {
		return model.ErrHostNotFound
	}

	// Use a transaction so the event and both indexes appear together
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, eventKey(event.ID), data, 0)
		pipe.RPush(ctx, eventsKey(), string(event.ID))
		pipe.RPush(ctx, hostEventsKey(event.HostID), string(event.ID))
		return nil
	})
	return model.StoreFailure(err)
}

func (s *Storage) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	events, err := loadJSON[model.Event](ctx, s.client, []string{eventKey(id)}, model.ErrEventNotFound)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return events[0], nil
}

func (s *Storage) ListEvents(ctx context.Context) ([]*model.Event, error) {
	return s.listEvents(ctx, eventsKey())
}

func (s *Storage) ListEventsByHost(ctx context.Context, hostID model.HostID) ([]*model.Event, error) {
	return s.listEvents(ctx, hostEventsKey(hostID))
}

func (s *Storage) listEvents(ctx context.Context, listKey string) ([]*model.Event, error) {
	ids, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	events, err := loadJSON[model.Event](ctx, s.client, mapKeys(ids, func(id string) string { return eventKey(model.EventID(id)) }), model.ErrEventNotFound)
	return events, model.StoreFailure(err)
}

// Participation operations

func (s *Storage) RecordIfNoneSince(ctx context.Context, rec *model.ParticipationRecord, since time.Time) (*model.ParticipationRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	latestKey := latestRecordKey(rec.SubjectID, rec.EventID)
	var blocking *model.ParticipationRecord

	err = s.watch(ctx, func(tx *redis.Tx) error {
		blocking = nil

		latest, err := getRecord(ctx, tx, latestKey)
		if err != nil {
			return err
		}
		if latest != nil && !latest.RecordedAt.Before(since) {
			blocking = latest
			return nil
		}

		if err := requireExists(ctx, tx, subjectKey(rec.SubjectID), model.ErrSubjectNotFound); err != nil {
			return err
		}
		if err := requireExists(ctx, tx, eventKey(rec.EventID), model.ErrEventNotFound); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			appendRecord(ctx, pipe, rec, data)
			return nil
		})
		return err
	}, latestKey)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return blocking, nil
}

func (s *Storage) LatestParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID, since time.Time) (*model.ParticipationRecord, error) {
	latest, err := getRecord(ctx, s.client, latestRecordKey(subjectID, eventID))
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	if latest == nil || latest.RecordedAt.Before(since) {
		return nil, nil
	}
	return latest, nil
}

func (s *Storage) InsertParticipationBatch(ctx context.Context, batchID model.BatchID, hostID model.HostID, records []*model.ParticipationRecord) error {
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	key := batchKey(batchID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		seen, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if seen > 0 {
			return model.ErrDuplicateBatch
		}

		for _, rec := range records {
			if err := requireExists(ctx, tx, subjectKey(rec.SubjectID), model.ErrSubjectNotFound); err != nil {
				return err
			}
			if err := requireExists(ctx, tx, eventKey(rec.EventID), model.ErrEventNotFound); err != nil {
				return err
			}
		}

		// MULTI/EXEC: the batch marker, records and point increments land together
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(hostID), 0)
			for i, rec := range records {
				appendRecord(ctx, pipe, rec, encoded[i])
				if score := rec.Outcome.Score(); score != 0 {
					pipe.HIncrBy(ctx, subjectPointsKey(), string(rec.SubjectID), int64(score))
				}
			}
			return nil
		})
		return err
	}, key)
	return model.StoreFailure(err)
}

func (s *Storage) ListParticipationBySubject(ctx context.Context, subjectID model.SubjectID) ([]*model.ParticipationRecord, error) {
	records, err := s.listRecords(ctx, subjectRecordsKey(subjectID))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RecordedAt.After(records[j].RecordedAt)
	})
	return records, nil
}

func (s *Storage) ListParticipation(ctx context.Context) ([]*model.ParticipationRecord, error) {
	return s.listRecords(ctx, recordsKey())
}

func (s *Storage) listRecords(ctx context.Context, listKey string) ([]*model.ParticipationRecord, error) {
	items, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	records := make([]*model.ParticipationRecord, 0, len(items))
	for _, item := range items {
		var rec model.ParticipationRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, model.StoreFailure(err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Helpers

// claimShortID reserves a short id with SETNX, then writes the entity.
// The claim is released again if the write fails.
func (s *Storage) claimShortID(ctx context.Context, claimKey, id string, write func(redis.Pipeliner)) error {
	claimed, err := s.client.SetNX(ctx, claimKey, id, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return model.ErrPrefixCollision
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		write(pipe)
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, claimKey).Err()
		return err
	}
	return nil
}

// rangeByPrefix returns index members starting with prefix, in lexical order
func (s *Storage) rangeByPrefix(ctx context.Context, indexKey, prefix string, limit int) ([]string, error) {
	p := shortid.Normalize(prefix)
	if p == "" {
		return nil, nil
	}
	opt := &redis.ZRangeBy{Min: "[" + p, Max: "[" + p + "\xff"}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	return s.client.ZRangeByLex(ctx, indexKey, opt).Result()
}

// loadSubjects fetches subjects and their point totals in one round trip
func (s *Storage) loadSubjects(ctx context.Context, ids []string) ([]*model.Subject, error) {
	if len(ids) == 0 {
		return []*model.Subject{}, nil
	}

	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		gets[i] = pipe.Get(ctx, subjectKey(model.SubjectID(id)))
	}
	points := pipe.HMGet(ctx, subjectPointsKey(), ids...)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	totals := points.Val()
	subjects := make([]*model.Subject, 0, len(ids))
	for i, get := range gets {
		data, err := get.Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSubjectNotFound
		}
		if err != nil {
			return nil, err
		}
		var subject model.Subject
		if err := json.Unmarshal(data, &subject); err != nil {
			return nil, err
		}
		if i < len(totals) {
			if str, ok := totals[i].(string); ok {
				subject.Points, _ = strconv.Atoi(str)
			}
		}
		subjects = append(subjects, &subject)
	}
	return subjects, nil
}

func (s *Storage) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	var err error
	for range retries {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// loadJSON fetches JSON values for keys in one pipeline. A missing key yields notFound.
func loadJSON[T any](ctx context.Context, client *redis.Client, keys []string, notFound error) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}

	pipe := client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		gets[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	result := make([]*T, 0, len(keys))
	for _, get := range gets {
		data, err := get.Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	return result, nil
}

// reader is the subset of commands shared by *redis.Client and *redis.Tx
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

func getRecord(ctx context.Context, c reader, key string) (*model.ParticipationRecord, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec model.ParticipationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func requireExists(ctx context.Context, c reader, key string, notFound error) error {
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// appendRecord queues the writes for one participation record
func appendRecord(ctx context.Context, pipe redis.Pipeliner, rec *model.ParticipationRecord, data []byte) {
	pipe.RPush(ctx, recordsKey(), data)
	pipe.RPush(ctx, subjectRecordsKey(rec.SubjectID), data)
	pipe.Set(ctx, latestRecordKey(rec.SubjectID, rec.EventID), data, 0)
}

func mapKeys(ids []string, key func(string) string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	return keys
}
