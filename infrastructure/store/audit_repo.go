package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// AuditRepo is the SQLite-backed append-only audit trail. Entries are never
// updated or deleted; the per-topic sequence is assigned inside the insert
// transaction and enforced by a unique constraint, so concurrent writers
// cannot interleave into the same slot.
type AuditRepo struct {
	db *sql.DB
}

var _ ports.AuditTrail = (*AuditRepo)(nil)

// NewAuditRepo creates an audit repository over an open database.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append stores the entry, assigning its per-topic sequence number and an
// ID when the caller left it empty, and returns the stored entry.
func (r *AuditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Payload == nil {
		entry.Payload = json.RawMessage(`{}`)
	}

	flags, err := json.Marshal(entry.Flags)
	if err != nil {
		return domain.AuditEntry{}, ports.NewStoreError("audit_entry", "append", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AuditEntry{}, ports.NewStoreError("audit_entry", "append", err)
	}
	defer tx.Rollback()

	const nextSeq = `SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE topic_id = ?`
	if err := tx.QueryRowContext(ctx, nextSeq, entry.TopicID).Scan(&entry.Seq); err != nil {
		return domain.AuditEntry{}, ports.NewStoreError("audit_entry", "append", err)
	}

	const insert = `INSERT INTO audit_entries (entry_id, topic_id, seq, kind, payload_json, actor, flags_json, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insert,
		entry.ID,
		entry.TopicID,
		entry.Seq,
		string(entry.Kind),
		string(entry.Payload),
		entry.Actor,
		string(flags),
		entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return domain.AuditEntry{}, ports.NewStoreError("audit_entry", "append", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.AuditEntry{}, ports.NewStoreError("audit_entry", "append", err)
	}
	return entry, nil
}

// Entries returns the topic's entries at or after since, in sequence order.
// A zero since returns the full log.
func (r *AuditRepo) Entries(ctx context.Context, topicID string, since time.Time) ([]domain.AuditEntry, error) {
	const q = `SELECT entry_id, topic_id, seq, kind, payload_json, actor, flags_json, ts
FROM audit_entries
WHERE topic_id = ? AND ts >= ?
ORDER BY seq ASC`

	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}

	rows, err := r.db.QueryContext(ctx, q, topicID, sinceNanos)
	if err != nil {
		return nil, ports.NewStoreError("audit_entry", "entries", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var kind, payload, flags string
		var ts int64
		if err := rows.Scan(&e.ID, &e.TopicID, &e.Seq, &kind, &payload, &e.Actor, &flags, &ts); err != nil {
			return nil, ports.NewStoreError("audit_entry", "scan", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Payload = json.RawMessage(payload)
		e.Timestamp = time.Unix(0, ts).UTC()
		if err := json.Unmarshal([]byte(flags), &e.Flags); err != nil {
			return nil, ports.NewStoreError("audit_entry", "scan", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
