package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during aggregation operations.
var (
	// ErrTopicNotFound indicates that a referenced topic does not exist.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrTopicArchived indicates a submission against a retired topic.
	ErrTopicArchived = errors.New("topic is archived")

	// ErrNoVotes indicates that no eligible votes remained for aggregation.
	ErrNoVotes = errors.New("no eligible votes to aggregate")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSuperseded indicates a recomputation whose output was discarded
	// because a newer run completed first. Not surfaced to callers;
	// last-computed-wins.
	ErrSuperseded = errors.New("recomputation superseded by a newer run")
)

// ReplayDivergenceError indicates that replaying a topic's audit log
// produced a result whose fingerprint differs from the logged one. Either
// the log was tampered with or the pipeline is no longer deterministic.
type ReplayDivergenceError struct {
	// TopicID is the topic whose replay diverged.
	TopicID string

	// Seq is the audit sequence of the recomputation entry that failed to
	// reproduce.
	Seq int64

	// Cohort is the cohort whose result diverged.
	Cohort Cohort

	// LoggedID and ReplayedID are the conflicting result fingerprints.
	LoggedID   string
	ReplayedID string
}

// Error implements the error interface for ReplayDivergenceError.
func (e *ReplayDivergenceError) Error() string {
	return fmt.Sprintf("replay divergence for topic %s at seq %d (cohort %s): logged %s, replayed %s",
		e.TopicID, e.Seq, e.Cohort, e.LoggedID, e.ReplayedID)
}

// AuditWriteError marks an audit append failure. It is fatal to the
// enclosing recomputation: a result whose audit entry could not be durably
// recorded must never be published.
type AuditWriteError struct {
	// TopicID is the topic whose log rejected the append.
	TopicID string

	// Err is the underlying storage error.
	Err error
}

// Error implements the error interface for AuditWriteError.
func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed for topic %s: %v", e.TopicID, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *AuditWriteError) Unwrap() error { return e.Err }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures and is rejected synchronously
// at the boundary, never entering the pipeline.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
