package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// StanceRepo persists stance history in SQLite. Every submission is a new
// row; the latest stance per (topic, user) is derived by query so prior
// values stay available for timelines and audit replay.
type StanceRepo struct {
	db *sql.DB
}

var _ ports.StanceStore = (*StanceRepo)(nil)

// NewStanceRepo creates a stance repository over an open database.
func NewStanceRepo(db *sql.DB) *StanceRepo {
	return &StanceRepo{db: db}
}

// Upsert appends the stance to history and returns it. Identical
// resubmissions still get a history row; deduplication happens at
// aggregation time, where only the latest row per user counts.
func (r *StanceRepo) Upsert(ctx context.Context, stance domain.Stance) (domain.Stance, error) {
	ranking, err := json.Marshal(stance.Ranking)
	if err != nil {
		return domain.Stance{}, ports.NewStoreError("stance", "upsert", err)
	}

	const q = `INSERT INTO stances (topic_id, user_id, value, argument_id, ranking_json, submitted_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		stance.TopicID,
		stance.UserID,
		stance.Value,
		stance.ArgumentID,
		string(ranking),
		stance.SubmittedAt.UnixNano(),
	)
	if err != nil {
		return domain.Stance{}, ports.NewStoreError("stance", "upsert", err)
	}
	return stance, nil
}

// LatestFor returns each user's most recent stance on the topic, ordered by
// user ID so downstream aggregation sees a deterministic input order.
func (r *StanceRepo) LatestFor(ctx context.Context, topicID string) ([]domain.Stance, error) {
	const q = `SELECT s.topic_id, s.user_id, s.value, s.argument_id, s.ranking_json, s.submitted_at
FROM stances s
JOIN (
	SELECT user_id, MAX(id) AS max_id
	FROM stances
	WHERE topic_id = ?
	GROUP BY user_id
) latest ON s.id = latest.max_id
ORDER BY s.user_id ASC`

	rows, err := r.db.QueryContext(ctx, q, topicID)
	if err != nil {
		return nil, ports.NewStoreError("stance", "latest_for", err)
	}
	defer rows.Close()

	return scanStances(rows)
}

// HistoryFor returns every stance the user submitted on the topic, in
// submission order.
func (r *StanceRepo) HistoryFor(ctx context.Context, userID, topicID string) ([]domain.Stance, error) {
	const q = `SELECT topic_id, user_id, value, argument_id, ranking_json, submitted_at
FROM stances
WHERE topic_id = ? AND user_id = ?
ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, q, topicID, userID)
	if err != nil {
		return nil, ports.NewStoreError("stance", "history_for", err)
	}
	defer rows.Close()

	return scanStances(rows)
}

// TopicsByArgument returns the IDs of topics whose stance history references
// the content item, used to fan out moderation state changes.
func (r *StanceRepo) TopicsByArgument(ctx context.Context, argumentID string) ([]string, error) {
	const q = `SELECT DISTINCT topic_id FROM stances WHERE argument_id = ? ORDER BY topic_id ASC`

	rows, err := r.db.QueryContext(ctx, q, argumentID)
	if err != nil {
		return nil, ports.NewStoreError("stance", "topics_by_argument", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ports.NewStoreError("stance", "topics_by_argument", err)
		}
		topics = append(topics, id)
	}
	return topics, rows.Err()
}

func scanStances(rows *sql.Rows) ([]domain.Stance, error) {
	var stances []domain.Stance
	for rows.Next() {
		var s domain.Stance
		var ranking string
		var submittedAt int64
		if err := rows.Scan(&s.TopicID, &s.UserID, &s.Value, &s.ArgumentID, &ranking, &submittedAt); err != nil {
			return nil, ports.NewStoreError("stance", "scan", err)
		}
		if err := json.Unmarshal([]byte(ranking), &s.Ranking); err != nil {
			return nil, ports.NewStoreError("stance", "scan", err)
		}
		s.SubmittedAt = time.Unix(0, submittedAt).UTC()
		stances = append(stances, s)
	}
	return stances, rows.Err()
}
