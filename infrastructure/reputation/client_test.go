package reputation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// stubProvider returns a fixed profile or error and counts calls.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	profile Profile
	err     error
}

func (s *stubProvider) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return Profile{}, s.err
	}
	return s.profile, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNewClient(t *testing.T) {
	t.Run("requires a provider", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		require.Error(t, err)
	})

	t.Run("accepts a bare provider", func(t *testing.T) {
		client, err := NewClient(ClientConfig{Provider: &stubProvider{}})
		require.NoError(t, err)
		require.NotNil(t, client)
	})
}

func TestClient_Resolve_ClampsScores(t *testing.T) {
	tests := []struct {
		name           string
		profile        Profile
		wantReputation float64
		wantEthical    float64
	}{
		{
			name:           "scores inside the band pass through",
			profile:        Profile{ExpertiseScore: 1.4, EthicalScore: 0.9, Percentile: 0.7},
			wantReputation: 1.4,
			wantEthical:    0.9,
		},
		{
			name:           "scores above the cap clamp down",
			profile:        Profile{ExpertiseScore: 9.0, EthicalScore: 5.5},
			wantReputation: 3.0,
			wantEthical:    3.0,
		},
		{
			name:           "scores below the floor clamp up",
			profile:        Profile{ExpertiseScore: 0.1, EthicalScore: 0.0},
			wantReputation: 0.5,
			wantEthical:    0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ClientConfig{Provider: &stubProvider{profile: tt.profile}})
			require.NoError(t, err)

			weights := client.Resolve(context.Background(), "user-1", "science", 0.5, 3.0)

			assert.Equal(t, tt.wantReputation, weights.Reputation)
			assert.Equal(t, tt.wantEthical, weights.Ethical)
			assert.Equal(t, tt.profile.Percentile, weights.Expertise)
			assert.False(t, weights.Degraded)
		})
	}
}

func TestClient_Resolve_DegradesOnFailure(t *testing.T) {
	provider := &stubProvider{err: ports.ErrServiceUnavailable}
	client, err := NewClient(ClientConfig{Provider: provider})
	require.NoError(t, err)

	weights := client.Resolve(context.Background(), "user-1", "science", 0.5, 3.0)

	assert.True(t, weights.Degraded)
	assert.Equal(t, domain.NeutralWeight, weights.Reputation)
	assert.Equal(t, domain.NeutralWeight, weights.Ethical)
}

func TestClient_Lookup_UsesCache(t *testing.T) {
	provider := &stubProvider{profile: Profile{ExpertiseScore: 2.0, EthicalScore: 1.0}}
	client, err := NewClient(ClientConfig{
		Provider: provider,
		Cache:    NewMemoryCache(),
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	first := client.Resolve(ctx, "user-1", "science", 0.5, 3.0)
	second := client.Resolve(ctx, "user-1", "science", 0.5, 3.0)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.callCount())
}

func TestClient_Lookup_CacheKeyIncludesDomain(t *testing.T) {
	provider := &stubProvider{profile: Profile{ExpertiseScore: 2.0, EthicalScore: 1.0}}
	client, err := NewClient(ClientConfig{
		Provider: provider,
		Cache:    NewMemoryCache(),
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	client.Resolve(ctx, "user-1", "science", 0.5, 3.0)
	client.Resolve(ctx, "user-1", "economics", 0.5, 3.0)

	assert.Equal(t, 2, provider.callCount())
}

func TestClient_Lookup_SingleflightDeduplicates(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	provider := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Profile{ExpertiseScore: 1.5, EthicalScore: 1.0}, nil
	})

	client, err := NewClient(ClientConfig{Provider: provider})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Resolve(context.Background(), "user-1", "science", 0.5, 3.0)
		}()
	}

	<-started
	// Give the remaining goroutines time to pile onto the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

// providerFunc adapts a function to CoreReputation for tests.
type providerFunc func(ctx context.Context, userID, domainID string) (Profile, error)

func (f providerFunc) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	return f(ctx, userID, domainID)
}

func TestMiddlewareOrdering(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreReputation) CoreReputation {
			return providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
				order = append(order, name)
				return next.FetchProfile(ctx, userID, domainID)
			})
		}
	}

	client, err := NewClient(ClientConfig{
		Provider:   &stubProvider{},
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, err)

	client.Resolve(context.Background(), "user-1", "science", 0.5, 3.0)

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", Profile{ExpertiseScore: 1.0}, time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", Profile{ExpertiseScore: 1.0}, 0))

	profile, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, profile.ExpertiseScore)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)

	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	ctx := context.Background()

	want := Profile{ExpertiseScore: 2.5, EthicalScore: 0.8, Percentile: 0.95}
	require.NoError(t, cache.Set(ctx, "reputation:science:user-1", want, time.Minute))

	got, ok, err := cache.Get(ctx, "reputation:science:user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = cache.Get(ctx, "reputation:science:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ExpiredEntryMisses(t *testing.T) {
	srv := miniredis.RunT(t)

	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", Profile{ExpertiseScore: 1.0}, time.Second))
	srv.FastForward(2 * time.Second)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetryMiddleware(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		provider := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
			if calls.Add(1) < 3 {
				return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile", ports.ErrServiceUnavailable)
			}
			return Profile{ExpertiseScore: 1.0}, nil
		})

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(provider)
		profile, err := wrapped.FetchProfile(context.Background(), "user-1", "science")

		require.NoError(t, err)
		assert.Equal(t, 1.0, profile.ExpertiseScore)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry missing profiles", func(t *testing.T) {
		var calls atomic.Int32
		provider := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
			calls.Add(1)
			return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile", ports.ErrProfileNotFound)
		})

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(provider)
		_, err := wrapped.FetchProfile(context.Background(), "user-1", "science")

		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("stops when the circuit is open", func(t *testing.T) {
		var calls atomic.Int32
		provider := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
			calls.Add(1)
			return Profile{}, ErrCircuitOpen
		})

		wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(provider)
		_, err := wrapped.FetchProfile(context.Background(), "user-1", "science")

		require.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	failing := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
		return Profile{}, ports.ErrServiceUnavailable
	})

	t.Run("opens after max failures", func(t *testing.T) {
		wrapped := CircuitBreakerMiddleware(2, time.Hour)(failing)
		ctx := context.Background()

		_, err := wrapped.FetchProfile(ctx, "u", "d")
		require.ErrorIs(t, err, ports.ErrServiceUnavailable)
		_, err = wrapped.FetchProfile(ctx, "u", "d")
		require.ErrorIs(t, err, ports.ErrServiceUnavailable)

		_, err = wrapped.FetchProfile(ctx, "u", "d")
		require.ErrorIs(t, err, ErrCircuitOpen)
	})

	t.Run("recovers through half open", func(t *testing.T) {
		var fail atomic.Bool
		fail.Store(true)
		provider := providerFunc(func(ctx context.Context, userID, domainID string) (Profile, error) {
			if fail.Load() {
				return Profile{}, ports.ErrServiceUnavailable
			}
			return Profile{ExpertiseScore: 1.0}, nil
		})

		wrapped := CircuitBreakerMiddleware(1, 10*time.Millisecond)(provider)
		ctx := context.Background()

		_, err := wrapped.FetchProfile(ctx, "u", "d")
		require.Error(t, err)
		_, err = wrapped.FetchProfile(ctx, "u", "d")
		require.ErrorIs(t, err, ErrCircuitOpen)

		fail.Store(false)
		time.Sleep(20 * time.Millisecond)

		profile, err := wrapped.FetchProfile(ctx, "u", "d")
		require.NoError(t, err)
		assert.Equal(t, 1.0, profile.ExpertiseScore)
	})
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	boom := errors.New("boom")

	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Call(func() error { return boom })
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Call(func() error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
