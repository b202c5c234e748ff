package units

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

func TestClassifierUnit_Classify(t *testing.T) {
	unit, err := NewClassifierUnit("classifier")
	require.NoError(t, err)

	config := domain.DefaultTopicConfig() // strong 0.80, leaning 0.60

	tests := []struct {
		share float64
		want  domain.ConsensusBand
	}{
		{share: 1.0, want: domain.BandStrongConsensus},
		{share: 0.80, want: domain.BandStrongConsensus},
		{share: 0.79, want: domain.BandLeaning},
		{share: 0.60, want: domain.BandLeaning},
		{share: 0.59, want: domain.BandDivided},
		{share: 0.50, want: domain.BandDivided},
		{share: 0.0, want: domain.BandDivided},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unit.Classify(tt.share, config), "share %.2f", tt.share)
	}
}

func TestClassifierUnit_ExecuteSealsResult(t *testing.T) {
	unit, err := NewClassifierUnit("classifier")
	require.NoError(t, err)

	topic := testTopic()
	state := domain.With(domain.NewState(), domain.KeyTopic, topic)
	state = domain.With(state, domain.KeyResult, &domain.AggregateResult{
		TopicID:          topic.ID,
		Cohort:           domain.CohortAll,
		ParticipantCount: 4,
		AgreementShare:   0.85,
		IsPublishable:    true,
	})

	state, err = unit.Execute(context.Background(), state)
	require.NoError(t, err)

	result, _ := domain.Get(state, domain.KeyResult)
	assert.Equal(t, domain.BandStrongConsensus, result.Band)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, result.Fingerprint(), result.ID)
}

func TestClassifierUnit_WithheldResultCarriesNoBand(t *testing.T) {
	unit, err := NewClassifierUnit("classifier")
	require.NoError(t, err)

	topic := testTopic()
	state := domain.With(domain.NewState(), domain.KeyTopic, topic)
	state = domain.With(state, domain.KeyResult, &domain.AggregateResult{
		TopicID:        topic.ID,
		Cohort:         domain.CohortExperts,
		AgreementShare: 0.95,
		Decision:       domain.PublishDecision{Publish: false, Reason: domain.ReasonExpertQuorumUnmet},
	})

	state, err = unit.Execute(context.Background(), state)
	require.NoError(t, err)

	result, _ := domain.Get(state, domain.KeyResult)
	assert.Empty(t, result.Band)
	assert.NotEmpty(t, result.ID)
}
