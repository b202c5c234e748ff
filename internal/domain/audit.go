package domain

import (
	"encoding/json"
	"time"
)

// EntryKind discriminates audit log entries.
type EntryKind string

// Audit entry kinds.
const (
	// EntryConfigChange records a topic configuration version change.
	EntryConfigChange EntryKind = "config_change"

	// EntryStanceSubmitted records a stance submission, including
	// idempotent resubmissions.
	EntryStanceSubmitted EntryKind = "stance_submitted"

	// EntryRecomputation records a completed aggregation run with its
	// full result snapshot.
	EntryRecomputation EntryKind = "recomputation"
)

// Audit flags attached to recomputation entries.
const (
	// FlagReputationLookupFailed marks a recomputation during which at
	// least one reputation lookup degraded to neutral weights.
	FlagReputationLookupFailed = "reputation_lookup_failed"

	// FlagModerationLookupFailed marks a recomputation during which the
	// moderation service could not be reached for at least one content
	// item; the affected stances stayed eligible.
	FlagModerationLookupFailed = "moderation_lookup_failed"
)

// AuditEntry is one record in a topic's append-only audit log. Entries are
// never mutated or deleted; replaying them through the deterministic pipeline
// reconstructs any past published result exactly.
type AuditEntry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	// TopicID scopes the entry to one topic's log.
	TopicID string `json:"topic_id"`

	// Seq is the monotonic sequence number within the topic's log.
	// Sequences are per topic, not global.
	Seq int64 `json:"seq"`

	// Kind discriminates the payload.
	Kind EntryKind `json:"kind"`

	// Payload is the JSON snapshot of the event: the submitted stance, the
	// new topic configuration, or the full aggregation result.
	Payload json.RawMessage `json:"payload"`

	// Actor identifies who or what caused the event ("engine" for
	// recomputations).
	Actor string `json:"actor"`

	// Flags carries degradation markers such as reputation_lookup_failed.
	Flags []string `json:"flags,omitempty"`

	// Timestamp records when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}

// StancePayload is the payload of a stance_submitted entry.
type StancePayload struct {
	Stance Stance `json:"stance"`
}

// ConfigPayload is the payload of a config_change entry.
type ConfigPayload struct {
	Config TopicConfig `json:"config"`
}

// RecomputationPayload is the payload of a recomputation entry. It holds
// the run's composed input votes alongside every result produced, so the
// run can be re-derived byte-for-byte from the log alone: the votes pin the
// reputation and moderation state that was in force, both of which are
// external and time-varying.
type RecomputationPayload struct {
	// Votes are the weighted votes after moderation filtering and weight
	// resolution, before cohort filtering.
	Votes []WeightedVote `json:"votes"`

	// Results holds the per-cohort outputs of the run.
	Results []AggregateResult `json:"results"`
}
