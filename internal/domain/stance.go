// Package domain contains pure, dependency-free domain models and types
// for the consensus engine.
package domain

import (
	"fmt"
	"time"
)

// Stance value bounds. Values are integers from StanceMin (strongly against)
// to StanceMax (strongly for); zero is neutral.
const (
	StanceMin = -3
	StanceMax = 3

	// StanceBuckets is the number of distinct stance values, used to size
	// distribution histograms.
	StanceBuckets = StanceMax - StanceMin + 1
)

// Stance is a participant's current position on a topic.
// One logical stance exists per (UserID, TopicID); submitting a new value
// supersedes the prior one but never deletes it, so the full history remains
// available for timeline views and audit replay.
type Stance struct {
	// TopicID identifies the topic this stance belongs to.
	TopicID string `json:"topic_id"`

	// UserID identifies the participant who submitted the stance.
	UserID string `json:"user_id"`

	// Value is the integer position in [StanceMin, StanceMax]; 0 is neutral.
	Value int `json:"value"`

	// ArgumentID optionally references the content item (e.g. a supporting
	// argument) this stance is attached to. Stances whose argument has been
	// auto-hidden by moderation are excluded from aggregation until the
	// argument is restored.
	ArgumentID string `json:"argument_id,omitempty"`

	// Ranking carries the participant's ordered preference over the topic's
	// options. It is required for ranking and preferential modalities and
	// must be a permutation of the topic's option IDs; it is empty for
	// approval and rating modalities.
	Ranking []string `json:"ranking,omitempty"`

	// SubmittedAt records when the stance was submitted.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks the stance against the invariants of the given topic.
// It returns a *ValidationError describing every violated constraint, or nil
// when the stance may enter the pipeline.
func (s Stance) Validate(topic Topic) error {
	verr := NewValidationError("stance")

	if s.TopicID == "" {
		verr.AddError("topic id must not be empty")
	} else if s.TopicID != topic.ID {
		verr.AddError(fmt.Sprintf("topic id %q does not match topic %q", s.TopicID, topic.ID))
	}
	if s.UserID == "" {
		verr.AddError("user id must not be empty")
	}
	if s.Value < StanceMin || s.Value > StanceMax {
		verr.AddError(fmt.Sprintf("value %d outside allowed range [%d, %d]", s.Value, StanceMin, StanceMax))
	}

	switch topic.Modality {
	case ModalityRanking, ModalityPreferential:
		if err := validateRanking(s.Ranking, topic.Options); err != nil {
			verr.AddError(err.Error())
		}
	default:
		if len(s.Ranking) > 0 {
			verr.AddError(fmt.Sprintf("ranking is not accepted for %s topics", topic.Modality))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// validateRanking checks that ranking is a permutation of options.
func validateRanking(ranking, options []string) error {
	if len(ranking) != len(options) {
		return fmt.Errorf("ranking lists %d options, topic has %d", len(ranking), len(options))
	}
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		seen[opt] = struct{}{}
	}
	for _, opt := range ranking {
		if _, ok := seen[opt]; !ok {
			return fmt.Errorf("ranking references unknown option %q", opt)
		}
		delete(seen, opt)
	}
	return nil
}

// Bucket returns the histogram bucket index for a stance value,
// mapping StanceMin..StanceMax onto 0..StanceBuckets-1.
func Bucket(value int) int { return value - StanceMin }
