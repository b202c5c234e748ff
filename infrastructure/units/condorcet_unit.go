package units

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*CondorcetUnit)(nil)

// CondorcetConfig controls pairwise aggregation for ranking modalities.
type CondorcetConfig struct {
	// CollationTag selects the language collation used for the final,
	// lexical tie-break over option IDs.
	CollationTag string `yaml:"collation_tag" json:"collation_tag" validate:"omitempty,bcp47_language_tag"`
}

// DefaultCondorcetConfig returns production-ready pairwise defaults:
// undetermined-language collation for locale-independent ordering.
func DefaultCondorcetConfig() CondorcetConfig {
	return CondorcetConfig{CollationTag: "und"}
}

// CondorcetUnit reduces ranked weighted votes into an AggregateResult for
// ranking and preferential modalities.
//
// Algorithm: each ballot contributes its combined weight to every pair
// (a, b) where the ballot ranks a above b. An option beating every other
// option pairwise is the Condorcet winner. When no such option exists, the
// winner is selected by Copeland score (count of pairwise wins). Remaining
// ties break by unweighted raw first-place count, then by collation order
// of the option IDs. Replayed audits must reproduce the winner exactly, so
// every step of the chain is deterministic.
//
// The tie-break and normalization rule is deliberately confined to this
// unit so an alternative pairwise strategy can be swapped in without
// touching the rest of the pipeline.
type CondorcetUnit struct {
	name     string
	config   CondorcetConfig
	collator *collate.Collator
}

// NewCondorcetUnit creates a CondorcetUnit with validated configuration.
// Returns ErrEmptyUnitName if name is empty, or configuration validation
// errors if constraints are violated.
func NewCondorcetUnit(name string, config CondorcetConfig) (*CondorcetUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tagName := config.CollationTag
	if tagName == "" {
		tagName = "und"
	}
	tag, err := language.Parse(tagName)
	if err != nil {
		return nil, fmt.Errorf("invalid collation tag %q: %w", tagName, err)
	}
	return &CondorcetUnit{
		name:     name,
		config:   config,
		collator: collate.New(tag),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *CondorcetUnit) Name() string { return u.name }

// Execute aggregates KeyVotes into a fresh KeyResult carrying the pairwise
// tallies and the selected winner. As with the mean aggregator, an empty
// vote set yields a zero-participant result for the threshold gate to
// withhold.
func (u *CondorcetUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
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
	if len(topic.Options) < 2 {
		return state, fmt.Errorf("topic %s: ranking aggregation needs at least two options", topic.ID)
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

	// pair[a][b] is the combined weight of ballots ranking a above b.
	pair := make(map[string]map[string]float64, len(topic.Options))
	firstPlace := make(map[string]int, len(topic.Options))
	for _, opt := range topic.Options {
		pair[opt] = make(map[string]float64, len(topic.Options)-1)
	}

	for _, v := range votes {
		if len(v.Ranking) == 0 {
			continue
		}
		w := v.Weight()
		firstPlace[v.Ranking[0]]++
		for i, above := range v.Ranking {
			for _, below := range v.Ranking[i+1:] {
				pair[above][below] += w
			}
		}
		result.Distribution[domain.Bucket(v.RawStance)]++
	}

	if len(votes) > 0 {
		winner := u.selectWinner(topic.Options, pair, firstPlace)
		result.Winner = winner
		result.Pairwise = u.tallies(topic.Options, pair)
		result.AgreementShare = agreementShare(winner, topic.Options, pair)
	}

	return domain.With(state, domain.KeyResult, &result), nil
}

// selectWinner applies the Condorcet → Copeland → raw-count → collation
// chain described on the unit.
func (u *CondorcetUnit) selectWinner(options []string, pair map[string]map[string]float64, firstPlace map[string]int) string {
	wins := make(map[string]int, len(options))
	for _, a := range options {
		beatsAll := true
		for _, b := range options {
			if a == b {
				continue
			}
			if pair[a][b] > pair[b][a] {
				wins[a]++
			} else {
				beatsAll = false
			}
		}
		if beatsAll {
			return a
		}
	}

	// No Condorcet winner: rank candidates by the tie-break chain and take
	// the first.
	ranked := append([]string(nil), options...)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if wins[a] != wins[b] {
			return wins[a] > wins[b]
		}
		if firstPlace[a] != firstPlace[b] {
			return firstPlace[a] > firstPlace[b]
		}
		return u.collator.CompareString(a, b) < 0
	})
	return ranked[0]
}

// tallies flattens the pairwise matrix into a deterministic, collation-
// ordered slice for the result snapshot.
func (u *CondorcetUnit) tallies(options []string, pair map[string]map[string]float64) []domain.PairwiseTally {
	sorted := append([]string(nil), options...)
	sort.Slice(sorted, func(i, j int) bool { return u.collator.CompareString(sorted[i], sorted[j]) < 0 })

	out := make([]domain.PairwiseTally, 0, len(options)*(len(options)-1))
	for _, a := range sorted {
		for _, b := range sorted {
			if a == b {
				continue
			}
			out = append(out, domain.PairwiseTally{Option: a, Opponent: b, Weight: pair[a][b]})
		}
	}
	return out
}

// agreementShare is the winner's mean pairwise win share, feeding the
// consensus classifier the same 0..1 scale the mean aggregator produces.
func agreementShare(winner string, options []string, pair map[string]map[string]float64) float64 {
	var total float64
	n := 0
	for _, b := range options {
		if b == winner {
			continue
		}
		sum := pair[winner][b] + pair[b][winner]
		if sum > 0 {
			total += pair[winner][b] / sum
		}
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Validate verifies the unit is properly configured.
func (u *CondorcetUnit) Validate() error {
	if u.collator == nil {
		return fmt.Errorf("collator not initialized")
	}
	return validate.Struct(u.config)
}

// UnmarshalParameters deserializes YAML configuration into the unit's
// parameters. The unit's configuration remains unchanged on error.
func (u *CondorcetUnit) UnmarshalParameters(params yaml.Node) error {
	var config CondorcetConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	tagName := config.CollationTag
	if tagName == "" {
		tagName = "und"
	}
	tag, err := language.Parse(tagName)
	if err != nil {
		return fmt.Errorf("invalid collation tag %q: %w", tagName, err)
	}
	u.config = config
	u.collator = collate.New(tag)
	return nil
}
