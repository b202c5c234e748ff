// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

// Unit represents one stage of the aggregation pipeline. Each Unit performs
// a specific transformation on the run State, enabling composable and
// reusable aggregation logic. Units must be stateless and thread-safe: the
// same pipeline executes concurrently for different topics, and the audit
// replay path executes the identical units over logged inputs.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, debugging, and configuration.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State must not be modified (immutability principle).
	// Any errors during execution should be returned rather than panicking.
	//
	// The context parameter allows for cancellation and deadline propagation.
	// Units should respect context cancellation and return promptly.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for
	// execution. It is typically called during pipeline construction.
	// Return nil if validation passes, or an error describing what is
	// invalid.
	Validate() error
}

// Executable is the execution-time contract shared by units and the
// containers that compose them. Pipelines hold Executables rather than
// Units so stages can themselves be composite.
type Executable interface {
	// ID returns the identifier used in execution error messages.
	ID() string

	// Execute runs the stage against the given state.
	Execute(ctx context.Context, state domain.State) (domain.State, error)
}
