package reputation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

func TestHTTPProvider_FetchProfile(t *testing.T) {
	t.Run("decodes a successful response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/profiles/science/user-1", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"expertise_score":1.8,"ethical_score":0.9,"percentile":0.92}`))
		}))
		defer srv.Close()

		provider := NewHTTPProvider(srv.URL, "test-key", time.Second)
		profile, err := provider.FetchProfile(context.Background(), "user-1", "science")

		require.NoError(t, err)
		assert.Equal(t, 1.8, profile.ExpertiseScore)
		assert.Equal(t, 0.9, profile.EthicalScore)
		assert.Equal(t, 0.92, profile.Percentile)
	})

	t.Run("maps 404 to profile not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		provider := NewHTTPProvider(srv.URL, "", time.Second)
		_, err := provider.FetchProfile(context.Background(), "user-1", "science")

		require.ErrorIs(t, err, ports.ErrProfileNotFound)

		var repErr *ports.ReputationError
		require.ErrorAs(t, err, &repErr)
		assert.False(t, repErr.IsRetryable())
	})

	t.Run("maps 429 to rate limited with retry hint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		provider := NewHTTPProvider(srv.URL, "", time.Second)
		_, err := provider.FetchProfile(context.Background(), "user-1", "science")

		require.ErrorIs(t, err, ports.ErrRateLimited)

		var repErr *ports.ReputationError
		require.ErrorAs(t, err, &repErr)
		require.NotNil(t, repErr.RetryAfter)
		assert.Equal(t, 7*time.Second, *repErr.RetryAfter)
		assert.True(t, repErr.IsRetryable())
	})

	t.Run("maps 5xx to service unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		provider := NewHTTPProvider(srv.URL, "", time.Second)
		_, err := provider.FetchProfile(context.Background(), "user-1", "science")

		require.ErrorIs(t, err, ports.ErrServiceUnavailable)
	})

	t.Run("maps malformed bodies to invalid response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		provider := NewHTTPProvider(srv.URL, "", time.Second)
		_, err := provider.FetchProfile(context.Background(), "user-1", "science")

		require.ErrorIs(t, err, ports.ErrInvalidResponse)
	})

	t.Run("unreachable service is retryable", func(t *testing.T) {
		provider := NewHTTPProvider("http://127.0.0.1:1", "", 100*time.Millisecond)
		_, err := provider.FetchProfile(context.Background(), "user-1", "science")

		var repErr *ports.ReputationError
		require.ErrorAs(t, err, &repErr)
		assert.True(t, repErr.IsRetryable())
	})
}
