// Package moderation provides the HTTP client for the external moderation
// service. The engine only reads report counts from it; all moderation
// decisions stay upstream.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.ModerationService = (*Client)(nil)

// DefaultTimeout bounds moderation lookups when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Client queries the moderation service for open report counts.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a moderation client for the given endpoint. A zero
// timeout selects DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type reportCountResponse struct {
	Count int `json:"count"`
}

// ReportCount returns the number of open reports against the content item.
// Unknown content reports zero; transport and server failures surface as
// errors so the moderation gate can keep the affected stances eligible and
// flag the run.
func (c *Client) ReportCount(ctx context.Context, contentID string) (int, error) {
	endpoint := fmt.Sprintf("%s/v1/reports/%s", c.baseURL, url.PathEscape(contentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("moderation request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("moderation lookup for %s: %w", contentID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, nil
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("moderation lookup for %s: %w (status %d)", contentID, ports.ErrServiceUnavailable, resp.StatusCode)
	}

	var body reportCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("moderation lookup for %s: %w: %v", contentID, ports.ErrInvalidResponse, err)
	}
	return body.Count, nil
}
