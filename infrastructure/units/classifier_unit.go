package units

import (
	"context"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*ClassifierUnit)(nil)

// ClassifierUnit maps a publishable result's agreement share to a discrete
// consensus band using the topic's configured thresholds. Withheld results
// carry no band: an unpublishable number makes no consensus claim.
//
// The classifier is the final pipeline stage; it also seals the result,
// assigning the deterministic fingerprint ID that audit replay verifies
// against.
type ClassifierUnit struct {
	name string
}

// NewClassifierUnit creates a consensus classifier.
// Returns ErrEmptyUnitName if name is empty.
func NewClassifierUnit(name string) (*ClassifierUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ClassifierUnit{name: name}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *ClassifierUnit) Name() string { return u.name }

// Classify maps an agreement share onto a consensus band under the given
// config. Exposed separately from Execute for the replay path.
func (u *ClassifierUnit) Classify(agreementShare float64, config domain.TopicConfig) domain.ConsensusBand {
	switch {
	case agreementShare >= config.StrongConsensus:
		return domain.BandStrongConsensus
	case agreementShare >= config.Leaning:
		return domain.BandLeaning
	default:
		return domain.BandDivided
	}
}

// Execute labels and seals KeyResult.
func (u *ClassifierUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
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

	if result.IsPublishable {
		result.Band = u.Classify(result.AgreementShare, topic.Config)
	}
	result.Seal()

	return domain.With(state, domain.KeyResult, result), nil
}

// Validate verifies the unit is properly configured.
func (u *ClassifierUnit) Validate() error {
	if u.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}
