package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// ResultRepo persists aggregation results in SQLite. Result rows are
// immutable; Put appends a new row and moves the per-slot latest pointer,
// so superseded results remain queryable for audit.
type ResultRepo struct {
	db *sql.DB
}

var _ ports.ResultStore = (*ResultRepo)(nil)

// NewResultRepo creates a result repository over an open database.
func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Put stores the result and moves the latest pointer for its
// (topic, scope, cohort) slot.
func (r *ResultRepo) Put(ctx context.Context, result domain.AggregateResult) error {
	if result.ID == "" {
		return ports.NewStoreError("result", "put", fmt.Errorf("result has no id; seal it first"))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return ports.NewStoreError("result", "put", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError("result", "put", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO results (result_id, topic_id, scope, cohort, result_json, computed_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert,
		result.ID,
		result.TopicID,
		string(result.Scope),
		string(result.Cohort),
		string(payload),
		result.ComputedAt.UnixNano(),
	)
	if err != nil {
		return ports.NewStoreError("result", "put", err)
	}
	pk, err := res.LastInsertId()
	if err != nil {
		return ports.NewStoreError("result", "put", err)
	}

	const pointer = `INSERT INTO result_latest (topic_id, scope, cohort, result_pk)
VALUES (?, ?, ?, ?)
ON CONFLICT(topic_id, scope, cohort) DO UPDATE SET result_pk = excluded.result_pk`
	if _, err := tx.ExecContext(ctx, pointer, result.TopicID, string(result.Scope), string(result.Cohort), pk); err != nil {
		return ports.NewStoreError("result", "put", err)
	}

	if err := tx.Commit(); err != nil {
		return ports.NewStoreError("result", "put", err)
	}
	return nil
}

// Latest returns the most recent result for the slot, published or withheld.
// It returns ports.ErrResultNotFound when the slot has never been computed.
func (r *ResultRepo) Latest(ctx context.Context, topicID string, scope domain.Scope, cohort domain.Cohort) (domain.AggregateResult, error) {
	const q = `SELECT res.result_json
FROM result_latest latest
JOIN results res ON res.id = latest.result_pk
WHERE latest.topic_id = ? AND latest.scope = ? AND latest.cohort = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, q, topicID, string(scope), string(cohort)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AggregateResult{}, ports.ErrResultNotFound
	}
	if err != nil {
		return domain.AggregateResult{}, ports.NewStoreError("result", "latest", err)
	}

	var result domain.AggregateResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return domain.AggregateResult{}, ports.NewStoreError("result", "latest", err)
	}
	return result, nil
}
