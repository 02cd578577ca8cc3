package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// dialect captures the few statements that differ between SQLite and PostgreSQL
type dialect struct {
	serial     string
	lockSuffix string
}

var (
	sqliteDialect   = dialect{serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{serial: "BIGSERIAL PRIMARY KEY", lockSuffix: " FOR UPDATE"}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres, DriverPgx:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// createSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func createSchema(ctx context.Context, db *sql.DB, d dialect) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, d.serial, d.serial, d.serial, d.serial)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Timestamps are unix milliseconds. seq preserves insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS subject (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    short_id TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    affiliation TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL CHECK (category IN ('primary', 'secondary')),
    profile TEXT NOT NULL DEFAULT '{}',
    points INTEGER NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS host (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    short_id TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    host_id TEXT NOT NULL REFERENCES host(id),
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_host_id ON event(host_id);

CREATE TABLE IF NOT EXISTS participation_batch (
    id TEXT PRIMARY KEY,
    host_id TEXT NOT NULL REFERENCES host(id),
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS participation (
    seq %s,
    id TEXT NOT NULL UNIQUE,
    subject_id TEXT NOT NULL REFERENCES subject(id),
    event_id TEXT NOT NULL REFERENCES event(id),
    outcome TEXT NOT NULL DEFAULT '' CHECK (outcome IN ('', 'win', 'participate', 'skipped')),
    batch_id TEXT NOT NULL DEFAULT '',
    recorded_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participation_pair ON participation(subject_id, event_id, recorded_at);
`
