package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

func TestThresholdGateUnit_Evaluate(t *testing.T) {
	unit, err := NewThresholdGateUnit("gate")
	require.NoError(t, err)

	config := domain.DefaultTopicConfig()
	config.ExpertQuorum = 12
	config.PublicFloor = 5

	tests := []struct {
		name       string
		result     domain.AggregateResult
		noFloor    bool
		wantReason string
	}{
		{
			name:   "all cohort above floor publishes",
			result: domain.AggregateResult{Cohort: domain.CohortAll, ParticipantCount: 5},
		},
		{
			name:       "all cohort below floor withheld",
			result:     domain.AggregateResult{Cohort: domain.CohortAll, ParticipantCount: 4},
			wantReason: domain.ReasonParticipationFloorUnmet,
		},
		{
			name: "expert cohort below quorum withheld",
			result: domain.AggregateResult{
				Cohort: domain.CohortExperts, ParticipantCount: 11, ExpertParticipantCount: 11,
			},
			wantReason: domain.ReasonExpertQuorumUnmet,
		},
		{
			name: "expert cohort at quorum publishes",
			result: domain.AggregateResult{
				Cohort: domain.CohortExperts, ParticipantCount: 12, ExpertParticipantCount: 12,
			},
		},
		{
			name:       "empty electorate withheld without a floor",
			result:     domain.AggregateResult{Cohort: domain.CohortAll},
			noFloor:    true,
			wantReason: domain.ReasonParticipationFloorUnmet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := config
			if tt.noFloor {
				config.PublicFloor = 0
			}
			decision := unit.Evaluate(&tt.result, config)
			if tt.wantReason == "" {
				assert.True(t, decision.Publish)
				assert.Empty(t, decision.Reason)
			} else {
				assert.False(t, decision.Publish)
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
		})
	}
}

func TestThresholdGateUnit_Execute(t *testing.T) {
	unit, err := NewThresholdGateUnit("gate")
	require.NoError(t, err)

	topic := testTopic()
	state := domain.With(domain.NewState(), domain.KeyTopic, topic)
	state = domain.With(state, domain.KeyResult, &domain.AggregateResult{
		TopicID: topic.ID, Cohort: domain.CohortAll, ParticipantCount: 3,
	})

	state, err = unit.Execute(context.Background(), state)
	require.NoError(t, err)

	result, _ := domain.Get(state, domain.KeyResult)
	assert.True(t, result.IsPublishable)
	assert.True(t, result.Decision.Publish)
}

func TestThresholdGateUnit_ExecuteRequiresResult(t *testing.T) {
	unit, err := NewThresholdGateUnit("gate")
	require.NoError(t, err)

	state := domain.With(domain.NewState(), domain.KeyTopic, testTopic())
	_, err = unit.Execute(context.Background(), state)
	assert.ErrorIs(t, err, ErrMissingResult)
}
