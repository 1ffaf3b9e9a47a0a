package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RideAPI is the request/response surface of the ride backend that the agent
// depends on: a read-only status fetch and the tracking fallback endpoint.
type RideAPI interface {
	RideStatus(ctx context.Context, rideID string) (string, error)
	PostTracking(ctx context.Context, rideID string, body []byte) error
}

// Client is a thin HTTP client for the ride backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client with the given base URL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rideStatusResponse struct {
	Status string `json:"status"`
}

// RideStatus fetches the current lifecycle status string for a ride.
func (c *Client) RideStatus(ctx context.Context, rideID string) (string, error) {
	url := fmt.Sprintf("%s/rides/%s/status", c.baseURL, rideID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch ride status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ride status request returned status code: %d", resp.StatusCode)
	}

	var body rideStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode ride status response: %w", err)
	}
	return body.Status, nil
}

// PostTracking sends a tracking batch to the ride-scoped fallback endpoint.
// The body is the same wire payload published on the real-time channel.
func (c *Client) PostTracking(ctx context.Context, rideID string, body []byte) error {
	url := fmt.Sprintf("%s/rides/%s/tracking", c.baseURL, rideID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post tracking batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracking request returned status code: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
