// Package reputation provides the client for the external reputation
// service ("Ekoh") with built-in support for caching, rate limiting,
// circuit breaking, retries, and metrics.
//
// The package abstracts the upstream transport behind a small CoreReputation
// interface while adding production-ready cross-cutting concerns through a
// middleware pattern, mirroring how the rest of the engine composes units.
//
// Basic usage:
//
//	client, err := reputation.NewClient(reputation.ClientConfig{
//	    Provider: reputation.NewHTTPProvider("https://ekoh.internal", apiKey, 5*time.Second),
//	    Middleware: []reputation.Middleware{
//	        reputation.RateLimitMiddleware(50, 100),
//	        reputation.CircuitBreakerMiddleware(5, 30*time.Second),
//	        reputation.RetryMiddleware(3, 100*time.Millisecond, 2*time.Second),
//	    },
//	})
//	weights := client.Resolve(ctx, userID, domainID, 0.5, 3.0)
//
// Resolve never fails: upstream errors degrade to neutral weights with the
// Degraded marker set, which the pipeline surfaces as an audit flag. The
// participant's vote still counts, just unweighted.
package reputation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// Profile is the raw per-user, per-domain record the reputation service
// owns and mutates; this engine reads it and caches the last-seen value.
type Profile struct {
	// ExpertiseScore is the raw domain expertise weight before clamping.
	ExpertiseScore float64 `json:"expertise_score"`

	// EthicalScore is the raw constructive-behavior multiplier before
	// clamping.
	EthicalScore float64 `json:"ethical_score"`

	// Percentile is the user's expertise percentile within the domain,
	// normalized to [0, 1]. Used for expert-cohort selection, never for
	// weighting.
	Percentile float64 `json:"percentile"`
}

// CoreReputation defines the minimal interface reputation providers must
// implement. The middleware system wraps any conforming implementation.
type CoreReputation interface {
	// FetchProfile returns the raw profile for the (user, domain) pair.
	FetchProfile(ctx context.Context, userID, domainID string) (Profile, error)
}

// Middleware wraps a CoreReputation implementation to add cross-cutting
// functionality such as rate limiting, circuit breaking, or metrics without
// modifying transport logic.
type Middleware func(CoreReputation) CoreReputation

// CacheStore is the read-through cache the client consults before hitting
// the upstream service. Implementations include the in-memory store and a
// Redis-backed store.
type CacheStore interface {
	// Get retrieves a cached profile, returning false when absent or expired.
	Get(ctx context.Context, key string) (Profile, bool, error)

	// Set stores a profile with an expiration time. Zero means no expiry.
	Set(ctx context.Context, key string, profile Profile, ttl time.Duration) error
}

// ClientConfig holds all configuration options for creating a reputation
// client.
type ClientConfig struct {
	// Provider is the transport making actual upstream calls.
	Provider CoreReputation

	// Middleware is applied in the order specified; the first entry is the
	// outermost wrapper.
	Middleware []Middleware

	// Cache, when set, short-circuits lookups for fresh entries.
	Cache CacheStore

	// CacheTTL bounds how long cached profiles stay fresh.
	// Zero disables expiry.
	CacheTTL time.Duration
}

// Client implements ports.ReputationService. It wraps a provider with
// middleware, a read-through cache, and singleflight deduplication of
// concurrent lookups for the same profile, and converts raw profiles to
// clamped weights.
type Client struct {
	core     CoreReputation
	cache    CacheStore
	cacheTTL time.Duration
	sf       singleflight.Group
}

var _ ports.ReputationService = (*Client)(nil)

// NewClient creates a reputation client with the specified configuration.
// The middleware chain is assembled here; the provider is required.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	core := config.Provider
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{
		core:     core,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
	}, nil
}

// Resolve returns the participant's weights for the domain, clamped to
// [floor, cap]. On upstream failure it returns neutral weights with
// Degraded set; it never blocks the enclosing recomputation on an error and
// never holds a lock across the upstream call.
func (c *Client) Resolve(ctx context.Context, userID, domainID string, floor, cap float64) domain.ReputationWeights {
	profile, err := c.lookup(ctx, userID, domainID)
	if err != nil {
		return domain.ReputationWeights{
			Reputation: domain.NeutralWeight,
			Ethical:    domain.NeutralWeight,
			Degraded:   true,
		}
	}

	return domain.ReputationWeights{
		Reputation: domain.Clamp(profile.ExpertiseScore, floor, cap),
		Ethical:    domain.Clamp(profile.EthicalScore, floor, cap),
		Expertise:  profile.Percentile,
	}
}

// lookup consults the cache, collapsing concurrent misses for the same key
// into a single upstream call.
func (c *Client) lookup(ctx context.Context, userID, domainID string) (Profile, error) {
	key := cacheKey(userID, domainID)

	if c.cache != nil {
		if profile, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return profile, nil
		}
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		profile, err := c.core.FetchProfile(ctx, userID, domainID)
		if err != nil {
			return Profile{}, err
		}
		if c.cache != nil {
			// A failed cache write only costs a future upstream call.
			_ = c.cache.Set(ctx, key, profile, c.cacheTTL)
		}
		return profile, nil
	})
	if err != nil {
		return Profile{}, err
	}
	return v.(Profile), nil
}

func cacheKey(userID, domainID string) string {
	return "reputation:" + domainID + ":" + userID
}
