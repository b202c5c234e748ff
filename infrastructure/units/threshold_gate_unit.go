package units

import (
	"context"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*ThresholdGateUnit)(nil)

// ThresholdGateUnit decides whether a computed result may be published.
// Checks run in a fixed order: expert quorum (expert cohort only), then the
// participation floor. Withheld results are still written to storage for
// audit and progress displays; they are flagged unpublishable and excluded
// from public listings, and they carry the first unmet threshold as their
// reason so the presentation layer can show "not enough data yet" rather
// than a failure.
type ThresholdGateUnit struct {
	name string
}

// NewThresholdGateUnit creates a threshold gate.
// Returns ErrEmptyUnitName if name is empty.
func NewThresholdGateUnit(name string) (*ThresholdGateUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ThresholdGateUnit{name: name}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *ThresholdGateUnit) Name() string { return u.name }

// Evaluate applies the threshold rules to a result under the given config.
// Exposed separately from Execute so the engine can gate replayed results
// through the identical logic.
func (u *ThresholdGateUnit) Evaluate(result *domain.AggregateResult, config domain.TopicConfig) domain.PublishDecision {
	if result.Cohort == domain.CohortExperts && result.ExpertParticipantCount < config.ExpertQuorum {
		return domain.PublishDecision{Publish: false, Reason: domain.ReasonExpertQuorumUnmet}
	}
	if config.PublicFloor > 0 && result.ParticipantCount < config.PublicFloor {
		return domain.PublishDecision{Publish: false, Reason: domain.ReasonParticipationFloorUnmet}
	}
	if result.ParticipantCount == 0 {
		// An empty electorate publishes nothing even without a floor.
		return domain.PublishDecision{Publish: false, Reason: domain.ReasonParticipationFloorUnmet}
	}
	return domain.PublishDecision{Publish: true}
}

// Execute stamps KeyResult with its publish decision.
func (u *ThresholdGateUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	topic, ok := domain.Get(state, domain.KeyTopic)
	if !ok {
		return state, ErrMissingTopic
	}
	result, ok := domain.Get(state, domain.KeyResult)
	if !ok || result == nil {
		return state, ErrMissingResult
	}

	result.Decision = u.Evaluate(result, topic.Config)
	result.IsPublishable = result.Decision.Publish

	return domain.With(state, domain.KeyResult, result), nil
}

// Validate verifies the unit is properly configured.
func (u *ThresholdGateUnit) Validate() error {
	if u.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}
