// Package sqldb is the database/sql storage backend. It runs on SQLite
// (modernc.org/sqlite) for development and tests and on PostgreSQL through
// either lib/pq or pgx.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/shortid"
	"github.com/apexfest/checkin/internal/storage"
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Config holds database connection settings
type Config struct {
	Driver string
	DSN    string
}

// Storage is a database/sql implementation of the storage interface
type Storage struct {
	db      *sql.DB
	dialect dialect
}

// New opens the database, verifies the connection and creates the schema
func New(ctx context.Context, cfg Config) (*Storage, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStore, err)
	}
	if cfg.Driver == DriverSQLite {
		// one connection serialises writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", model.ErrStore, err)
	}
	if err := createSchema(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", model.ErrStore, err)
	}

	return &Storage{db: db, dialect: d}, nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error {
	return model.StoreFailure(s.db.PingContext(ctx))
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Subject operations

func (s *Storage) CreateSubject(ctx context.Context, subject *model.Subject) error {
	profile, err := encodeProfile(subject.Profile)
	if err != nil {
		return model.StoreFailure(err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subject (id, short_id, display_name, affiliation, email, category, profile, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`, string(subject.ID), shortid.Normalize(subject.ShortID()), subject.DisplayName, subject.Affiliation,
		subject.Email, string(subject.Category), profile, subject.Points, toMillis(subject.CreatedAt))
	return insertedOrCollision(res, err)
}

const subjectColumns = `id, display_name, affiliation, email, category, profile, points, created_at`

func (s *Storage) GetSubject(ctx context.Context, id model.SubjectID) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subject WHERE id = $1`, string(id))
	subject, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSubjectNotFound
	}
	return subject, model.StoreFailure(err)
}

func (s *Storage) FindSubjectsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Subject, error) {
	pattern, ok := likePrefix(prefix)
	if !ok {
		return []*model.Subject{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subject WHERE lower(id) LIKE $1 ORDER BY seq`+limitClause(limit), pattern)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanSubject)
}

func (s *Storage) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subject ORDER BY seq`)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanSubject)
}

// Host operations

func (s *Storage) CreateHost(ctx context.Context, host *model.Host) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO host (id, short_id, display_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, string(host.ID), shortid.Normalize(host.ShortID()), host.DisplayName, toMillis(host.CreatedAt))
	return insertedOrCollision(res, err)
}

const hostColumns = `id, display_name, created_at`

func (s *Storage) GetHost(ctx context.Context, id model.HostID) (*model.Host, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM host WHERE id = $1`, string(id))
	host, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrHostNotFound
	}
	return host, model.StoreFailure(err)
}

func (s *Storage) FindHostsByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Host, error) {
	pattern, ok := likePrefix(prefix)
	if !ok {
		return []*model.Host{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+hostColumns+` FROM host WHERE lower(id) LIKE $1 ORDER BY seq`+limitClause(limit), pattern)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanHost)
}

func (s *Storage) ListHosts(ctx context.Context) ([]*model.Host, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+hostColumns+` FROM host ORDER BY seq`)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanHost)
}

// Event operations

func (s *Storage) CreateEvent(ctx context.Context, event *model.Event) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, `SELECT id FROM host WHERE id = $1`, string(event.HostID), model.ErrHostNotFound); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event (id, host_id, name, description, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, string(event.ID), string(event.HostID), event.Name, event.Description, toMillis(event.CreatedAt))
		return err
	})
	return model.StoreFailure(err)
}

const eventColumns = `id, host_id, name, description, created_at`

func (s *Storage) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM event WHERE id = $1`, string(id))
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	return event, model.StoreFailure(err)
}

func (s *Storage) ListEvents(ctx context.Context) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM event ORDER BY seq`)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanEvent)
}

func (s *Storage) ListEventsByHost(ctx context.Context, hostID model.HostID) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM event WHERE host_id = $1 ORDER BY seq`, string(hostID))
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanEvent)
}

// Participation operations

const participationColumns = `id, subject_id, event_id, outcome, batch_id, recorded_at`

func (s *Storage) RecordIfNoneSince(ctx context.Context, rec *model.ParticipationRecord, since time.Time) (*model.ParticipationRecord, error) {
	var blocking *model.ParticipationRecord

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Locking the subject row serialises concurrent check-ins for the same subject
		if err := exists(ctx, tx, `SELECT id FROM subject WHERE id = $1`+s.dialect.lockSuffix, string(rec.SubjectID), model.ErrSubjectNotFound); err != nil {
			return err
		}

		latest, err := latestSince(ctx, tx, rec.SubjectID, rec.EventID, since)
		if err != nil {
			return err
		}
		if latest != nil {
			blocking = latest
			return nil
		}

		if err := exists(ctx, tx, `SELECT id FROM event WHERE id = $1`, string(rec.EventID), model.ErrEventNotFound); err != nil {
			return err
		}
		return insertRecord(ctx, tx, rec)
	})
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return blocking, nil
}

func (s *Storage) LatestParticipation(ctx context.Context, subjectID model.SubjectID, eventID model.EventID, since time.Time) (*model.ParticipationRecord, error) {
	latest, err := latestSince(ctx, s.db, subjectID, eventID, since)
	return latest, model.StoreFailure(err)
}

func (s *Storage) InsertParticipationBatch(ctx context.Context, batchID model.BatchID, hostID model.HostID, records []*model.ParticipationRecord) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO participation_batch (id, host_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, string(batchID), string(hostID), toMillis(batchTime(records)))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return model.ErrDuplicateBatch
		}

		for _, rec := range records {
			if err := exists(ctx, tx, `SELECT id FROM subject WHERE id = $1`, string(rec.SubjectID), model.ErrSubjectNotFound); err != nil {
				return err
			}
			if err := exists(ctx, tx, `SELECT id FROM event WHERE id = $1`, string(rec.EventID), model.ErrEventNotFound); err != nil {
				return err
			}
			if err := insertRecord(ctx, tx, rec); err != nil {
				return err
			}
			if score := rec.Outcome.Score(); score != 0 {
				if _, err := tx.ExecContext(ctx, `UPDATE subject SET points = points + $1 WHERE id = $2`, score, string(rec.SubjectID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return model.StoreFailure(err)
}

func (s *Storage) ListParticipationBySubject(ctx context.Context, subjectID model.SubjectID) ([]*model.ParticipationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+participationColumns+` FROM participation
		WHERE subject_id = $1
		ORDER BY recorded_at DESC, seq DESC
	`, string(subjectID))
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanRecord)
}

func (s *Storage) ListParticipation(ctx context.Context) ([]*model.ParticipationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+participationColumns+` FROM participation ORDER BY seq`)
	if err != nil {
		return nil, model.StoreFailure(err)
	}
	return collect(rows, scanRecord)
}

// Helpers

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func exists(ctx context.Context, q querier, query, id string, notFound error) error {
	var found string
	err := q.QueryRowContext(ctx, query, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

func latestSince(ctx context.Context, q querier, subjectID model.SubjectID, eventID model.EventID, since time.Time) (*model.ParticipationRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+participationColumns+` FROM participation
		WHERE subject_id = $1 AND event_id = $2 AND recorded_at >= $3
		ORDER BY recorded_at DESC, seq DESC
		LIMIT 1
	`, string(subjectID), string(eventID), toMillis(since))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *model.ParticipationRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO participation (id, subject_id, event_id, outcome, batch_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(rec.ID), string(rec.SubjectID), string(rec.EventID), string(rec.Outcome), string(rec.BatchID), toMillis(rec.RecordedAt))
	return err
}

func insertedOrCollision(res sql.Result, err error) error {
	if err != nil {
		return model.StoreFailure(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.StoreFailure(err)
	}
	if n == 0 {
		return model.ErrPrefixCollision
	}
	return nil
}

func collect[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]*T, error) {
	defer rows.Close()

	result := []*T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, model.StoreFailure(err)
		}
		result = append(result, v)
	}
	return result, model.StoreFailure(rows.Err())
}

func scanSubject(row scanner) (*model.Subject, error) {
	var (
		subject   model.Subject
		id        string
		category  string
		profile   string
		createdAt int64
	)
	if err := row.Scan(&id, &subject.DisplayName, &subject.Affiliation, &subject.Email, &category, &profile, &subject.Points, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(profile), &subject.Profile); err != nil {
		return nil, fmt.Errorf("subject %s profile: %w", id, err)
	}
	if len(subject.Profile) == 0 {
		subject.Profile = nil
	}
	subject.ID = model.SubjectID(id)
	subject.Category = model.Category(category)
	subject.CreatedAt = fromMillis(createdAt)
	return &subject, nil
}

func scanHost(row scanner) (*model.Host, error) {
	var (
		host      model.Host
		id        string
		createdAt int64
	)
	if err := row.Scan(&id, &host.DisplayName, &createdAt); err != nil {
		return nil, err
	}
	host.ID = model.HostID(id)
	host.CreatedAt = fromMillis(createdAt)
	return &host, nil
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		event     model.Event
		id        string
		hostID    string
		createdAt int64
	)
	if err := row.Scan(&id, &hostID, &event.Name, &event.Description, &createdAt); err != nil {
		return nil, err
	}
	event.ID = model.EventID(id)
	event.HostID = model.HostID(hostID)
	event.CreatedAt = fromMillis(createdAt)
	return &event, nil
}

func scanRecord(row scanner) (*model.ParticipationRecord, error) {
	var (
		id, subjectID, eventID, outcome, batchID string
		recordedAt                               int64
	)
	if err := row.Scan(&id, &subjectID, &eventID, &outcome, &batchID, &recordedAt); err != nil {
		return nil, err
	}
	return &model.ParticipationRecord{
		ID:         model.RecordID(id),
		SubjectID:  model.SubjectID(subjectID),
		EventID:    model.EventID(eventID),
		Outcome:    model.Outcome(outcome),
		BatchID:    model.BatchID(batchID),
		RecordedAt: fromMillis(recordedAt),
	}, nil
}

// likePrefix turns a short id into a LIKE pattern. Anything other than
// id characters is rejected so user input never carries wildcards.
func likePrefix(prefix string) (string, bool) {
	p := shortid.Normalize(prefix)
	if p == "" {
		return "", false
	}
	for _, r := range p {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r == '-') {
			return "", false
		}
	}
	return p + "%", true
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// encodeProfile stores a subject profile as a JSON object
func encodeProfile(profile map[string]string) (string, error) {
	if len(profile) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(profile)
	return string(data), err
}

// batchTime is the submission time of a batch. Every record of a batch
// carries the same time.
func batchTime(records []*model.ParticipationRecord) time.Time {
	if len(records) == 0 {
		return time.Time{}
	}
	return records[0].RecordedAt
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
