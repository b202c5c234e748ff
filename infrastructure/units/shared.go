// Package units provides the pipeline stages of the consensus engine as
// ports.Unit implementations: moderation gating, weight composition,
// aggregation, threshold gating, and consensus classification.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by pipeline units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingTopic is returned when a unit executes against a state
	// without a topic.
	ErrMissingTopic = errors.New("topic not found in state")

	// ErrMissingVotes is returned when an aggregation unit executes before
	// the composer has produced votes.
	ErrMissingVotes = errors.New("votes not found in state")

	// ErrMissingResult is returned when a gate or classifier executes
	// before an aggregator has produced a result.
	ErrMissingResult = errors.New("result not found in state")

	// ErrInvalidScore is returned when a weighted value is NaN or infinite.
	ErrInvalidScore = errors.New("weighted value is not a finite number")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
