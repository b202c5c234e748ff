package reputation

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedReputation implements rate limiting using a token bucket
// algorithm. This keeps the engine inside the reputation service's request
// quota and ensures consistent pacing across concurrent recomputations.
type rateLimitedReputation struct {
	next    CoreReputation
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using
// a token bucket algorithm. The limit parameter sets lookups per second,
// while burst allows temporary spikes above the sustained rate.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreReputation) CoreReputation {
		return &rateLimitedReputation{
			next:    next,
			limiter: limiter,
		}
	}
}

// FetchProfile waits for rate limit permission before forwarding the lookup.
// This blocks the calling goroutine until a token is available.
func (r *rateLimitedReputation) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Profile{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.FetchProfile(ctx, userID, domainID)
}
