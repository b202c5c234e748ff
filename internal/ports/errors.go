package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrResultNotFound indicates that no result exists for the requested
	// (topic, scope, cohort) slot.
	ErrResultNotFound = errors.New("result not found")

	// ErrProfileNotFound indicates that the reputation service holds no
	// profile for the requested (user, domain) pair.
	ErrProfileNotFound = errors.New("reputation profile not found")
)

// ReputationError represents an error from the external reputation service.
// It includes the lookup coordinates and any rate limit information.
type ReputationError struct {
	// UserID and DomainID identify the failed lookup.
	UserID   string
	DomainID string

	// Operation is the name of the operation that failed.
	Operation string

	// Err is the underlying error that occurred.
	Err error

	// RetryAfter indicates how long to wait before retrying, if applicable.
	RetryAfter *time.Duration
}

// Error implements the error interface for ReputationError.
func (e *ReputationError) Error() string {
	msg := fmt.Sprintf("reputation error: user=%s, domain=%s, operation=%s, err=%v",
		e.UserID, e.DomainID, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ReputationError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func (e *ReputationError) IsRetryable() bool {
	// Only network/service-level errors are retryable; logic errors are not.
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewReputationError creates a new ReputationError with the given details.
func NewReputationError(userID, domainID, operation string, err error) *ReputationError {
	return &ReputationError{
		UserID:    userID,
		DomainID:  domainID,
		Operation: operation,
		Err:       err,
	}
}

// StoreError represents an error from a persistence operation.
// It includes the entity and operation that failed.
type StoreError struct {
	// Entity is the stored entity involved in the failed operation.
	Entity string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: entity=%s, operation=%s, err=%v", e.Entity, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Err:       err,
	}
}
