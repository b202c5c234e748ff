package units

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*ComposeUnit)(nil)

// DefaultResolveConcurrency bounds parallel reputation lookups per run.
const DefaultResolveConcurrency = 8

// ComposeConfig controls weight composition and cohort filtering.
type ComposeConfig struct {
	// MaxConcurrency limits parallel reputation lookups. Zero selects
	// DefaultResolveConcurrency.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=0,max=64"`
}

// DefaultComposeConfig returns production-ready composition defaults.
func DefaultComposeConfig() ComposeConfig {
	return ComposeConfig{MaxConcurrency: DefaultResolveConcurrency}
}

// ComposeUnit resolves reputation weights for every eligible stance and
// combines them into weighted votes. For the expert cohort it restricts the
// vote set to qualifying participants before weighting takes effect and
// renormalizes weights inside the cohort, so no single expert can dominate
// the reduced population.
//
// Lookups run in parallel with bounded concurrency; the resolver degrades
// to neutral weights on upstream failure, so composition itself never fails
// on a reputation outage. The unit is stateless and safe for concurrent
// execution across topics.
type ComposeUnit struct {
	name       string
	reputation ports.ReputationService
	config     ComposeConfig
}

// NewComposeUnit creates a ComposeUnit backed by the given reputation
// resolver. Returns ErrEmptyUnitName if name is empty, or configuration
// validation errors if constraints are violated.
func NewComposeUnit(name string, reputation ports.ReputationService, config ComposeConfig) (*ComposeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if reputation == nil {
		return nil, fmt.Errorf("reputation service is required")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ComposeUnit{name: name, reputation: reputation, config: config}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *ComposeUnit) Name() string { return u.name }

// Execute resolves weights for KeyEligibleStances and writes KeyVotes and
// KeyExpertCount. When KeyCohort is the expert cohort, votes are filtered
// to qualifying participants and renormalized to mean weight 1.0, then
// re-clamped to the topic's bounds.
func (u *ComposeUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	topic, ok := domain.Get(state, domain.KeyTopic)
	if !ok {
		return state, ErrMissingTopic
	}
	stances, ok := domain.Get(state, domain.KeyEligibleStances)
	if !ok {
		return state, fmt.Errorf("eligible stances not found in state")
	}
	cohort, _ := domain.Get(state, domain.KeyCohort)
	if cohort == "" {
		cohort = domain.CohortAll
	}

	floor, cap := topic.Config.WeightFloor, topic.Config.WeightCap

	votes := make([]domain.WeightedVote, len(stances))
	g, gctx := errgroup.WithContext(ctx)

	maxConcurrency := u.config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultResolveConcurrency
	}
	g.SetLimit(maxConcurrency)

	for i, stance := range stances {
		g.Go(func() error {
			weights := u.reputation.Resolve(gctx, stance.UserID, topic.DomainID, floor, cap)
			votes[i] = domain.Compose(stance, weights, floor, cap)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return state, fmt.Errorf("weight resolution: %w", err)
	}

	// Parallel resolution must not leak nondeterministic ordering into the
	// aggregate.
	sort.Slice(votes, func(i, j int) bool { return votes[i].UserID < votes[j].UserID })

	degraded := false
	for _, v := range votes {
		if v.Weights.Degraded {
			degraded = true
		}
	}

	votes, expertCount := CohortVotes(votes, cohort, topic.Config)

	next := domain.With(state, domain.KeyVotes, votes)
	next = domain.With(next, domain.KeyExpertCount, expertCount)
	if degraded {
		next = next.AddAuditFlag(domain.FlagReputationLookupFailed)
	}
	return next, nil
}

// CohortVotes applies cohort selection to composed votes and reports the
// expert participant count over the full vote set. The audit replay path
// calls this directly over logged votes, so cohort selection stays
// identical between live runs and reconstruction.
func CohortVotes(votes []domain.WeightedVote, cohort domain.Cohort, config domain.TopicConfig) ([]domain.WeightedVote, int) {
	expertCount := 0
	for _, v := range votes {
		if isExpert(v, config.ExpertPercentile) {
			expertCount++
		}
	}
	if cohort == domain.CohortExperts {
		votes = renormalize(filterExperts(votes, config.ExpertPercentile), config.WeightFloor, config.WeightCap)
	}
	return votes, expertCount
}

// isExpert reports whether the vote's raw expertise score clears the
// configured percentile cutoff. Upstream scores are percentile-normalized
// to [0, 1], so the cutoff applies directly to the score.
func isExpert(v domain.WeightedVote, percentile float64) bool {
	return v.Weights.Expertise >= percentile
}

// filterExperts restricts votes to qualifying participants. The filter runs
// before weighting takes effect on the aggregate: the cohort is selected on
// raw expertise, not on composed weight.
func filterExperts(votes []domain.WeightedVote, percentile float64) []domain.WeightedVote {
	experts := make([]domain.WeightedVote, 0, len(votes))
	for _, v := range votes {
		if isExpert(v, percentile) {
			experts = append(experts, v)
		}
	}
	return experts
}

// renormalize rescales the cohort's combined weights to mean 1.0 and
// recomposes each weighted value, re-clamping so the rescale cannot push a
// weight outside the configured bounds.
func renormalize(votes []domain.WeightedVote, floor, cap float64) []domain.WeightedVote {
	if len(votes) == 0 {
		return votes
	}
	var total float64
	for _, v := range votes {
		total += v.Weight()
	}
	if total == 0 {
		return votes
	}
	scale := float64(len(votes)) / total

	out := make([]domain.WeightedVote, len(votes))
	for i, v := range votes {
		rep := domain.Clamp(v.Weights.Reputation*scale, floor, cap)
		v.Weights.Reputation = rep
		v.WeightedValue = float64(v.RawStance) * rep * v.Weights.Ethical
		out[i] = v
	}
	return out
}

// Validate verifies the unit is properly configured.
func (u *ComposeUnit) Validate() error {
	if u.reputation == nil {
		return fmt.Errorf("reputation service is required")
	}
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters with validation. The unit's configuration remains unchanged
// on error.
func (u *ComposeUnit) UnmarshalParameters(params yaml.Node) error {
	var config ComposeConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	u.config = config
	return nil
}
