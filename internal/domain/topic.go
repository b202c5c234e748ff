package domain

import "time"

// Scope partitions the voter population for a topic.
type Scope string

// Supported scopes.
const (
	// ScopeElite restricts participation to the qualified/invited cohort.
	ScopeElite Scope = "elite"

	// ScopePublic opens participation to everyone.
	ScopePublic Scope = "public"
)

// Modality determines how stances on a topic are aggregated.
type Modality string

// Supported modalities.
const (
	// ModalityApproval aggregates by weighted mean of approve/oppose stances.
	ModalityApproval Modality = "approval"

	// ModalityRating aggregates by weighted mean over the full stance range.
	ModalityRating Modality = "rating"

	// ModalityRanking aggregates ordered ballots by weighted pairwise tally.
	ModalityRanking Modality = "ranking"

	// ModalityPreferential is ranking with preference strength semantics;
	// it shares the pairwise aggregation path.
	ModalityPreferential Modality = "preferential"
)

// Modalities lists every supported modality, in declaration order.
// Used by configuration loading for unknown-value suggestions.
var Modalities = []Modality{ModalityApproval, ModalityRating, ModalityRanking, ModalityPreferential}

// UsesRanking reports whether the modality aggregates ordered ballots
// rather than scalar stance values.
func (m Modality) UsesRanking() bool {
	return m == ModalityRanking || m == ModalityPreferential
}

// Cohort names a filter over participants applied before aggregation.
type Cohort string

// Supported cohorts.
const (
	// CohortAll aggregates over every eligible participant.
	CohortAll Cohort = "all"

	// CohortExperts restricts aggregation to participants whose domain
	// expertise clears the configured percentile.
	CohortExperts Cohort = "experts"
)

// ConsensusBand is the discrete label attached to a publishable result.
type ConsensusBand string

// Consensus bands, from least to most agreement.
const (
	BandDivided         ConsensusBand = "divided"
	BandLeaning         ConsensusBand = "leaning"
	BandStrongConsensus ConsensusBand = "strong_consensus"
)

// TopicConfig holds the tunable policy for a topic. Discrete quorum numbers
// and band percentages are configuration, never constants baked into logic;
// every change bumps Version and is recorded as a config_change audit entry,
// so any historical result can be reconstructed under the policy that
// produced it.
type TopicConfig struct {
	// Version is incremented on every configuration change.
	Version int `yaml:"version" json:"version"`

	// WeightFloor and WeightCap bound both the reputation weight and the
	// ethical multiplier before they enter a weighted vote.
	WeightFloor float64 `yaml:"weight_floor" json:"weight_floor" validate:"gt=0"`
	WeightCap   float64 `yaml:"weight_cap" json:"weight_cap" validate:"gtefield=WeightFloor"`

	// ExpertQuorum is the minimum distinct expert participants required
	// before an expert-cohort result may be published.
	ExpertQuorum int `yaml:"expert_quorum" json:"expert_quorum" validate:"min=1"`

	// PublicFloor is the minimum participant count for any cohort's result;
	// zero disables the floor.
	PublicFloor int `yaml:"public_floor" json:"public_floor" validate:"min=0"`

	// ExpertPercentile is the expertise quantile a participant must reach,
	// within the topic's participant population, to qualify for the expert
	// cohort.
	ExpertPercentile float64 `yaml:"expert_percentile" json:"expert_percentile" validate:"gte=0,lte=1"`

	// AutoHideReports is the report count at which content is provisionally
	// excluded from aggregation pending moderator review.
	AutoHideReports int `yaml:"auto_hide_reports" json:"auto_hide_reports" validate:"min=1"`

	// StrongConsensus and Leaning are agreement-share thresholds for the
	// consensus bands. StrongConsensus must not be below Leaning.
	StrongConsensus float64 `yaml:"strong_consensus" json:"strong_consensus" validate:"gte=0,lte=1,gtefield=Leaning"`
	Leaning         float64 `yaml:"leaning" json:"leaning" validate:"gte=0,lte=1"`
}

// DefaultTopicConfig returns the policy applied to topics that carry no
// explicit configuration.
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{
		Version:          1,
		WeightFloor:      0.5,
		WeightCap:        3.0,
		ExpertQuorum:     12,
		PublicFloor:      0,
		ExpertPercentile: 0.9,
		AutoHideReports:  3,
		StrongConsensus:  0.80,
		Leaning:          0.60,
	}
}

// Topic is the subject participants take stances on. Identity is immutable;
// Config is versioned over the topic's life.
type Topic struct {
	// ID uniquely identifies the topic.
	ID string `json:"id"`

	// DomainID names the expertise domain used for reputation lookups.
	DomainID string `json:"domain_id"`

	// Scope partitions the voter population (elite vs public).
	Scope Scope `json:"scope"`

	// Modality selects the aggregation algorithm.
	Modality Modality `json:"modality"`

	// Options lists the candidate option IDs for ranking modalities.
	// Empty for approval and rating topics.
	Options []string `json:"options,omitempty"`

	// Config is the current versioned policy.
	Config TopicConfig `json:"config"`

	// Archived marks a topic retired after decision closure. Archived
	// topics accept no new stances but their results and audit log remain
	// queryable.
	Archived bool `json:"archived"`

	// CreatedAt records when the topic was proposed.
	CreatedAt time.Time `json:"created_at"`
}
