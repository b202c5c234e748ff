// Package store provides SQLite-backed persistence for topics, stance
// history, aggregation results, and the append-only audit trail.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
//
// Stance rows are append-only history; the latest stance per (topic, user)
// is derived by query, never by update. Audit entries carry a per-topic
// sequence enforced by the UNIQUE constraint. Result rows are immutable;
// the result_latest table holds the moving pointer per (topic, scope,
// cohort) slot.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS topics (
	topic_id       TEXT PRIMARY KEY,
	domain_id      TEXT NOT NULL,
	scope          TEXT NOT NULL,
	modality       TEXT NOT NULL,
	options_json   TEXT NOT NULL DEFAULT '[]',
	config_json    TEXT NOT NULL DEFAULT '{}',
	config_version INTEGER NOT NULL DEFAULT 1,
	archived       INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stances (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id     TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	value        INTEGER NOT NULL,
	argument_id  TEXT NOT NULL DEFAULT '',
	ranking_json TEXT NOT NULL DEFAULT '[]',
	submitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stances_topic_user ON stances(topic_id, user_id, id);
CREATE INDEX IF NOT EXISTS idx_stances_argument ON stances(argument_id) WHERE argument_id != '';

CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	result_id   TEXT NOT NULL,
	topic_id    TEXT NOT NULL,
	scope       TEXT NOT NULL,
	cohort      TEXT NOT NULL,
	result_json TEXT NOT NULL,
	computed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_slot ON results(topic_id, scope, cohort, id);

CREATE TABLE IF NOT EXISTS result_latest (
	topic_id  TEXT NOT NULL,
	scope     TEXT NOT NULL,
	cohort    TEXT NOT NULL,
	result_pk INTEGER NOT NULL,
	PRIMARY KEY (topic_id, scope, cohort)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id     TEXT NOT NULL,
	topic_id     TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	kind         TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	actor        TEXT NOT NULL DEFAULT '',
	flags_json   TEXT NOT NULL DEFAULT '[]',
	ts           INTEGER NOT NULL,
	UNIQUE(topic_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_audit_topic_seq ON audit_entries(topic_id, seq);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
