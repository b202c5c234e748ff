package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

func rankedVote(userID string, weight float64, ranking ...string) domain.WeightedVote {
	return domain.WeightedVote{
		UserID:        userID,
		TopicID:       "topic-1",
		RawStance:     1,
		Ranking:       ranking,
		Weights:       domain.ReputationWeights{Reputation: weight, Ethical: 1.0},
		WeightedValue: weight,
	}
}

func rankingTopicFixture(options ...string) domain.Topic {
	topic := testTopic()
	topic.Modality = domain.ModalityRanking
	topic.Options = options
	return topic
}

func TestCondorcetUnit_CondorcetWinner(t *testing.T) {
	unit, err := NewCondorcetUnit("condorcet", DefaultCondorcetConfig())
	require.NoError(t, err)

	votes := []domain.WeightedVote{
		rankedVote("u1", 1, "transit", "parks", "housing"),
		rankedVote("u2", 1, "transit", "housing", "parks"),
		rankedVote("u3", 1, "parks", "transit", "housing"),
	}
	state, err := unit.Execute(context.Background(), votesState(rankingTopicFixture("parks", "transit", "housing"), votes))
	require.NoError(t, err)

	result, ok := domain.Get(state, domain.KeyResult)
	require.True(t, ok)
	assert.Equal(t, "transit", result.Winner)
	assert.Equal(t, 3, result.ParticipantCount)
	// Transit beats parks 2:1 and housing 3:0, so its mean pairwise win
	// share is (2/3 + 1) / 2.
	assert.InDelta(t, (2.0/3.0+1.0)/2.0, result.AgreementShare, 1e-9)
	assert.Len(t, result.Pairwise, 6)
}

func TestCondorcetUnit_WeightDecidesPair(t *testing.T) {
	unit, err := NewCondorcetUnit("condorcet", DefaultCondorcetConfig())
	require.NoError(t, err)

	// Two light ballots against one heavy one.
	votes := []domain.WeightedVote{
		rankedVote("u1", 1, "a", "b"),
		rankedVote("u2", 1, "a", "b"),
		rankedVote("u3", 3, "b", "a"),
	}
	state, err := unit.Execute(context.Background(), votesState(rankingTopicFixture("a", "b"), votes))
	require.NoError(t, err)

	result, _ := domain.Get(state, domain.KeyResult)
	assert.Equal(t, "b", result.Winner)
}

func TestCondorcetUnit_CycleFallsBackToTieBreak(t *testing.T) {
	unit, err := NewCondorcetUnit("condorcet", DefaultCondorcetConfig())
	require.NoError(t, err)

	// a > b > c > a: no Condorcet winner, Copeland scores all tie at one
	// win each, raw first-place counts tie, collation picks "a".
	votes := []domain.WeightedVote{
		rankedVote("u1", 1, "a", "b", "c"),
		rankedVote("u2", 1, "b", "c", "a"),
		rankedVote("u3", 1, "c", "a", "b"),
	}
	state, err := unit.Execute(context.Background(), votesState(rankingTopicFixture("a", "b", "c"), votes))
	require.NoError(t, err)

	result, _ := domain.Get(state, domain.KeyResult)
	assert.Equal(t, "a", result.Winner)
}

func TestCondorcetUnit_EmptyVotes(t *testing.T) {
	unit, err := NewCondorcetUnit("condorcet", DefaultCondorcetConfig())
	require.NoError(t, err)

	state, err := unit.Execute(context.Background(), votesState(rankingTopicFixture("a", "b"), nil))
	require.NoError(t, err)

	result, ok := domain.Get(state, domain.KeyResult)
	require.True(t, ok)
	assert.Zero(t, result.ParticipantCount)
	assert.Empty(t, result.Winner)
}

func TestCondorcetUnit_RequiresOptions(t *testing.T) {
	unit, err := NewCondorcetUnit("condorcet", DefaultCondorcetConfig())
	require.NoError(t, err)

	_, err = unit.Execute(context.Background(), votesState(rankingTopicFixture("only"), nil))
	assert.Error(t, err)
}

func TestNewCondorcetUnit_RejectsBadCollation(t *testing.T) {
	_, err := NewCondorcetUnit("condorcet", CondorcetConfig{CollationTag: "not a tag"})
	assert.Error(t, err)
}
