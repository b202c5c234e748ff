package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// TopicRepo persists topics and their versioned configuration in SQLite.
type TopicRepo struct {
	db *sql.DB
}

var _ ports.TopicStore = (*TopicRepo)(nil)

// NewTopicRepo creates a topic repository over an open database.
func NewTopicRepo(db *sql.DB) *TopicRepo {
	return &TopicRepo{db: db}
}

// Get returns the topic or domain.ErrTopicNotFound.
func (r *TopicRepo) Get(ctx context.Context, topicID string) (domain.Topic, error) {
	const q = `SELECT topic_id, domain_id, scope, modality, options_json, config_json, archived, created_at
FROM topics WHERE topic_id = ?`

	var t domain.Topic
	var scope, modality, options, config string
	var archived int
	var createdAt int64

	err := r.db.QueryRowContext(ctx, q, topicID).Scan(
		&t.ID, &t.DomainID, &scope, &modality, &options, &config, &archived, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	if err != nil {
		return domain.Topic{}, ports.NewStoreError("topic", "get", err)
	}

	t.Scope = domain.Scope(scope)
	t.Modality = domain.Modality(modality)
	t.Archived = archived != 0
	t.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(options), &t.Options); err != nil {
		return domain.Topic{}, ports.NewStoreError("topic", "get", err)
	}
	if err := json.Unmarshal([]byte(config), &t.Config); err != nil {
		return domain.Topic{}, ports.NewStoreError("topic", "get", err)
	}
	return t, nil
}

// Put creates or replaces a topic. The configuration version lives inside
// the config document; a copy in its own column supports version queries
// without JSON extraction.
func (r *TopicRepo) Put(ctx context.Context, topic domain.Topic) error {
	options, err := json.Marshal(topic.Options)
	if err != nil {
		return ports.NewStoreError("topic", "put", err)
	}
	config, err := json.Marshal(topic.Config)
	if err != nil {
		return ports.NewStoreError("topic", "put", err)
	}

	archived := 0
	if topic.Archived {
		archived = 1
	}

	const q = `INSERT INTO topics (topic_id, domain_id, scope, modality, options_json, config_json, config_version, archived, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(topic_id) DO UPDATE SET
	domain_id      = excluded.domain_id,
	scope          = excluded.scope,
	modality       = excluded.modality,
	options_json   = excluded.options_json,
	config_json    = excluded.config_json,
	config_version = excluded.config_version,
	archived       = excluded.archived`

	_, err = r.db.ExecContext(ctx, q,
		topic.ID,
		topic.DomainID,
		string(topic.Scope),
		string(topic.Modality),
		string(options),
		string(config),
		topic.Config.Version,
		archived,
		topic.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ports.NewStoreError("topic", "put", err)
	}
	return nil
}
