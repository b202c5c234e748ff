package units

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/testutils"
)

// countingModeration tracks lookups per content item.
type countingModeration struct {
	mu      sync.Mutex
	reports map[string]int
	lookups map[string]int
}

func (m *countingModeration) ReportCount(_ context.Context, contentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[contentID]++
	return m.reports[contentID], nil
}

func gateState(topic domain.Topic, stances []domain.Stance) domain.State {
	state := domain.With(domain.NewState(), domain.KeyTopic, topic)
	return domain.With(state, domain.KeyStances, stances)
}

func TestModerationGateUnit_Execute(t *testing.T) {
	moderation := testutils.NewModerationStub(map[string]int{
		"arg-hidden":  3,
		"arg-visible": 2,
	})
	unit, err := NewModerationGateUnit("gate", moderation)
	require.NoError(t, err)

	stances := []domain.Stance{
		{TopicID: "topic-1", UserID: "u1", Value: 1, ArgumentID: "arg-hidden"},
		{TopicID: "topic-1", UserID: "u2", Value: 2, ArgumentID: "arg-visible"},
		{TopicID: "topic-1", UserID: "u3", Value: 3},
	}
	state, err := unit.Execute(context.Background(), gateState(testTopic(), stances))
	require.NoError(t, err)

	eligible, ok := domain.Get(state, domain.KeyEligibleStances)
	require.True(t, ok)
	require.Len(t, eligible, 2)
	assert.Equal(t, "u2", eligible[0].UserID)
	assert.Equal(t, "u3", eligible[1].UserID)

	flags, _ := domain.Get(state, domain.KeyAuditFlags)
	assert.Empty(t, flags)
}

func TestModerationGateUnit_ChecksEachArgumentOnce(t *testing.T) {
	moderation := &countingModeration{
		reports: map[string]int{"arg-1": 0},
		lookups: make(map[string]int),
	}
	unit, err := NewModerationGateUnit("gate", moderation)
	require.NoError(t, err)

	stances := []domain.Stance{
		{TopicID: "topic-1", UserID: "u1", Value: 1, ArgumentID: "arg-1"},
		{TopicID: "topic-1", UserID: "u2", Value: 2, ArgumentID: "arg-1"},
		{TopicID: "topic-1", UserID: "u3", Value: 3, ArgumentID: "arg-1"},
	}
	_, err = unit.Execute(context.Background(), gateState(testTopic(), stances))
	require.NoError(t, err)

	assert.Equal(t, 1, moderation.lookups["arg-1"])
}

func TestModerationGateUnit_OutageKeepsStancesEligible(t *testing.T) {
	moderation := testutils.NewModerationStub(nil)
	moderation.Err = errors.New("moderation service down")
	unit, err := NewModerationGateUnit("gate", moderation)
	require.NoError(t, err)

	stances := []domain.Stance{
		{TopicID: "topic-1", UserID: "u1", Value: 1, ArgumentID: "arg-1"},
	}
	state, err := unit.Execute(context.Background(), gateState(testTopic(), stances))
	require.NoError(t, err)

	eligible, _ := domain.Get(state, domain.KeyEligibleStances)
	assert.Len(t, eligible, 1)

	flags, _ := domain.Get(state, domain.KeyAuditFlags)
	assert.Contains(t, flags, domain.FlagModerationLookupFailed)
}

func TestModerationGateUnit_IsEligible(t *testing.T) {
	moderation := testutils.NewModerationStub(map[string]int{"arg-1": 2})
	unit, err := NewModerationGateUnit("gate", moderation)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := unit.IsEligible(ctx, "arg-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	// The threshold itself hides.
	ok, err = unit.IsEligible(ctx, "arg-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewModerationGateUnit_Validation(t *testing.T) {
	_, err := NewModerationGateUnit("", testutils.NewModerationStub(nil))
	assert.ErrorIs(t, err, ErrEmptyUnitName)

	_, err = NewModerationGateUnit("gate", nil)
	assert.Error(t, err)
}
