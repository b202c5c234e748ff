package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Withhold reasons attached to results that fail a threshold check.
const (
	// ReasonExpertQuorumUnmet marks an expert-cohort result with fewer
	// distinct expert participants than the configured quorum.
	ReasonExpertQuorumUnmet = "expert_quorum_unmet"

	// ReasonParticipationFloorUnmet marks a result whose participant count
	// is below the configured public floor.
	ReasonParticipationFloorUnmet = "participation_floor_unmet"
)

// PublishDecision is the threshold gate's verdict on a computed result.
// Withholding is a first-class outcome, not an error: withheld results are
// still stored for audit and progress displays, just never listed publicly.
type PublishDecision struct {
	// Publish is true when every threshold check passed.
	Publish bool `json:"publish"`

	// Reason names the first unmet threshold when Publish is false.
	Reason string `json:"reason,omitempty"`
}

// PairwiseTally records the weighted support for one option over another in
// ranking modalities.
type PairwiseTally struct {
	Option   string  `json:"option"`
	Opponent string  `json:"opponent"`
	Weight   float64 `json:"weight"`
}

// AggregateResult is the published (or withheld) outcome of one aggregation
// run for a (topic, scope, cohort) combination. Results are immutable once
// written; recomputation supersedes the latest pointer, it never patches.
type AggregateResult struct {
	// ID is a deterministic digest of the result's inputs, so replaying the
	// same audit log yields a byte-identical result.
	ID string `json:"id"`

	TopicID string `json:"topic_id"`
	Scope   Scope  `json:"scope"`
	Cohort  Cohort `json:"cohort"`

	// ConfigVersion is the topic configuration version in force when the
	// result was computed.
	ConfigVersion int `json:"config_version"`

	// ParticipantCount is the number of distinct eligible participants.
	ParticipantCount int `json:"participant_count"`

	// ExpertParticipantCount is the number of participants qualifying for
	// the expert cohort, regardless of which cohort this result covers.
	ExpertParticipantCount int `json:"expert_participant_count"`

	// WeightedMean is Σ(wᵢ·xᵢ)/Σwᵢ over the eligible votes. Zero for
	// ranking modalities.
	WeightedMean float64 `json:"weighted_mean"`

	// AgreementShare is the weight fraction on the dominant direction,
	// the classifier's input.
	AgreementShare float64 `json:"agreement_share"`

	// Distribution is the unweighted histogram over the seven stance
	// buckets, indexed by Bucket(value).
	Distribution [StanceBuckets]int `json:"distribution"`

	// Winner is the Condorcet/Copeland winner for ranking modalities.
	Winner string `json:"winner,omitempty"`

	// Pairwise holds the weighted pairwise tallies behind Winner.
	Pairwise []PairwiseTally `json:"pairwise,omitempty"`

	// Band is the consensus label. Empty while the result is withheld:
	// unpublishable numbers carry no consensus claim.
	Band ConsensusBand `json:"band,omitempty"`

	// Decision records whether and why the result may be published.
	Decision PublishDecision `json:"decision"`

	// IsPublishable mirrors Decision.Publish for listing queries.
	IsPublishable bool `json:"is_publishable"`

	// ComputedAt is the logical time of the aggregation run. During replay
	// it is taken from the audit log, not the wall clock.
	ComputedAt time.Time `json:"computed_at"`
}

// Fingerprint computes the deterministic result ID from everything that
// influenced the numbers. Two runs over identical logged inputs produce the
// same fingerprint; any divergence signals a broken replay.
func (r *AggregateResult) Fingerprint() string {
	// The ID field itself is excluded from the digest.
	shadow := *r
	shadow.ID = ""
	payload, err := json.Marshal(&shadow)
	if err != nil {
		// Marshalling a value composed of plain fields cannot fail; keep a
		// defined output anyway.
		payload = []byte(fmt.Sprintf("%+v", shadow))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Seal assigns the deterministic ID. Call once the result is final.
func (r *AggregateResult) Seal() { r.ID = r.Fingerprint() }
