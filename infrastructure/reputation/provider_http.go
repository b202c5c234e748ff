package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// HTTPProvider fetches profiles from the reputation service's REST API.
// The service exposes GET {base}/v1/profiles/{domain}/{user} returning a
// Profile JSON document.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ CoreReputation = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTP transport for the reputation service.
// A zero timeout disables the per-request deadline.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchProfile performs the upstream lookup, mapping transport failures
// onto the shared ports error taxonomy so retry and circuit-breaker
// middleware can classify them.
func (p *HTTPProvider) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	url := fmt.Sprintf("%s/v1/profiles/%s/%s", p.baseURL, domainID, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile",
			fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Decoded below.
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile", ports.ErrProfileNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		repErr := ports.NewReputationError(userID, domainID, "fetch_profile", ports.ErrRateLimited)
		if after := retryAfter(resp); after > 0 {
			repErr.RetryAfter = &after
		}
		return Profile{}, repErr
	case resp.StatusCode >= 500:
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile",
			fmt.Errorf("%w: status %d", ports.ErrServiceUnavailable, resp.StatusCode))
	default:
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile",
			fmt.Errorf("%w: status %d", ports.ErrInvalidResponse, resp.StatusCode))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, ports.NewReputationError(userID, domainID, "fetch_profile",
			fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
	}
	return profile, nil
}

func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
