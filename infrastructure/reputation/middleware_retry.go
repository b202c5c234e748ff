package reputation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// retryReputation implements automatic retry logic with exponential backoff.
// This handles transient failures by retrying lookups with increasing
// delays while respecting circuit breaker and context constraints.
type retryReputation struct {
	next       CoreReputation
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that automatically retries failed
// lookups with exponential backoff. Only errors the service marks as
// retryable are retried; a missing profile fails immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreReputation) CoreReputation {
		return &retryReputation{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// FetchProfile executes the lookup with automatic retry logic.
// It implements exponential backoff and respects circuit breaker states
// and context cancellation to avoid unnecessary retries.
func (r *retryReputation) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		profile, err := r.next.FetchProfile(ctx, userID, domainID)
		if err == nil {
			return profile, nil
		}

		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil || !isRetryable(err) {
			break
		}

		if attempt == r.maxRetries {
			break
		}

		delay := r.calculateDelay(attempt, err)

		select {
		case <-ctx.Done():
			return Profile{}, ctx.Err()
		case <-time.After(delay):
			// Continue to next attempt.
		}
	}

	return Profile{}, fmt.Errorf("lookup failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retryReputation) calculateDelay(attempt int, err error) time.Duration {
	// Honor the server's Retry-After hint when present.
	var repErr *ports.ReputationError
	if errors.As(err, &repErr) && repErr.RetryAfter != nil {
		return *repErr.RetryAfter
	}

	// Exponential backoff with jitter.
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}

	return delay
}

func isRetryable(err error) bool {
	var repErr *ports.ReputationError
	if errors.As(err, &repErr) {
		return repErr.IsRetryable()
	}
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrServiceUnavailable) ||
		errors.Is(err, ports.ErrTimeout)
}
