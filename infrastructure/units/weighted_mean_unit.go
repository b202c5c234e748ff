package units

import (
	"context"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*WeightedMeanUnit)(nil)

// WeightedMeanConfig controls weighted-mean aggregation.
type WeightedMeanConfig struct {
	// RequireFinite rejects NaN and infinite weighted values instead of
	// skipping them. The pipeline always composes finite values; the
	// guard matters only for callers embedding the unit directly.
	RequireFinite bool `yaml:"require_finite" json:"require_finite"`
}

// DefaultWeightedMeanConfig returns production-ready aggregation defaults.
func DefaultWeightedMeanConfig() WeightedMeanConfig {
	return WeightedMeanConfig{RequireFinite: true}
}

// WeightedMeanUnit reduces weighted votes into an AggregateResult for
// rating and approval modalities.
//
// Mathematical Algorithm: weighted mean Σ(wᵢ·xᵢ)/Σwᵢ where wᵢ is the
// clamped combined weight and xᵢ the raw stance; alongside it, the
// unweighted distribution histogram over the seven stance buckets for
// display, and the agreement share feeding the consensus classifier.
//
// Agreement share: the combined weight on the dominant direction (for or
// against) divided by the total weight, neutrals counting in the
// denominator only. A unanimous electorate scores 1.0; an evenly split one
// scores 0.5.
//
// Performance: O(n) single pass. Concurrency: stateless and thread-safe.
type WeightedMeanUnit struct {
	name   string
	config WeightedMeanConfig
}

// NewWeightedMeanUnit creates a WeightedMeanUnit with validated
// configuration. Returns ErrEmptyUnitName if name is empty.
func NewWeightedMeanUnit(name string, config WeightedMeanConfig) (*WeightedMeanUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &WeightedMeanUnit{name: name, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *WeightedMeanUnit) Name() string { return u.name }

// Execute aggregates KeyVotes into a fresh KeyResult. An empty vote set
// produces a zero-participant result rather than an error; the threshold
// gate downstream withholds it as "not enough data yet".
func (u *WeightedMeanUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	topic, ok := domain.Get(state, domain.KeyTopic)
	if !ok {
		return state, ErrMissingTopic
	}
	votes, ok := domain.Get(state, domain.KeyVotes)
	if !ok {
		return state, ErrMissingVotes
	}
	cohort, _ := domain.Get(state, domain.KeyCohort)
	if cohort == "" {
		cohort = domain.CohortAll
	}
	expertCount, _ := domain.Get(state, domain.KeyExpertCount)
	computedAt, _ := domain.Get(state, domain.KeyComputedAt)

	result := domain.AggregateResult{
		TopicID:                topic.ID,
		Scope:                  topic.Scope,
		Cohort:                 cohort,
		ConfigVersion:          topic.Config.Version,
		ParticipantCount:       len(votes),
		ExpertParticipantCount: expertCount,
		ComputedAt:             computedAt,
	}

	var weightedSum, totalWeight float64
	var weightFor, weightAgainst float64
	for i, v := range votes {
		if math.IsNaN(v.WeightedValue) || math.IsInf(v.WeightedValue, 0) {
			if u.config.RequireFinite {
				return state, fmt.Errorf("%w: index %d, value %f", ErrInvalidScore, i, v.WeightedValue)
			}
			continue
		}
		w := v.Weight()
		weightedSum += v.WeightedValue
		totalWeight += w
		switch {
		case v.RawStance > 0:
			weightFor += w
		case v.RawStance < 0:
			weightAgainst += w
		}
		result.Distribution[domain.Bucket(v.RawStance)]++
	}

	if totalWeight > 0 {
		result.WeightedMean = weightedSum / totalWeight
		result.AgreementShare = math.Max(weightFor, weightAgainst) / totalWeight
	}

	return domain.With(state, domain.KeyResult, &result), nil
}

// Validate verifies the unit is properly configured.
func (u *WeightedMeanUnit) Validate() error {
	if u.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters. The unit's configuration remains unchanged on error.
func (u *WeightedMeanUnit) UnmarshalParameters(params yaml.Node) error {
	var config WeightedMeanConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	u.config = config
	return nil
}
