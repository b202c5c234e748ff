package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

func TestTopicRepo_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewTopicRepo(db)
	ctx := context.Background()

	topic := domain.Topic{
		ID:        "topic-1",
		DomainID:  "science",
		Scope:     domain.ScopePublic,
		Modality:  domain.ModalityRanking,
		Options:   []string{"opt-a", "opt-b", "opt-c"},
		Config:    domain.DefaultTopicConfig(),
		CreatedAt: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Put(ctx, topic))

	got, err := repo.Get(ctx, "topic-1")
	require.NoError(t, err)
	assert.Equal(t, topic.ID, got.ID)
	assert.Equal(t, topic.DomainID, got.DomainID)
	assert.Equal(t, topic.Scope, got.Scope)
	assert.Equal(t, topic.Modality, got.Modality)
	assert.Equal(t, topic.Options, got.Options)
	assert.Equal(t, topic.Config, got.Config)
	assert.False(t, got.Archived)
	assert.True(t, topic.CreatedAt.Equal(got.CreatedAt))
}

func TestTopicRepo_GetMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewTopicRepo(db)

	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrTopicNotFound)
}

func TestTopicRepo_PutUpdatesConfigVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewTopicRepo(db)
	ctx := context.Background()

	topic := domain.Topic{
		ID:        "topic-1",
		DomainID:  "science",
		Scope:     domain.ScopeElite,
		Modality:  domain.ModalityApproval,
		Config:    domain.DefaultTopicConfig(),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Put(ctx, topic))

	topic.Config.Version = 2
	topic.Config.ExpertQuorum = 20
	topic.Archived = true
	require.NoError(t, repo.Put(ctx, topic))

	got, err := repo.Get(ctx, "topic-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Config.Version)
	assert.Equal(t, 20, got.Config.ExpertQuorum)
	assert.True(t, got.Archived)
}
