// Package backend is the HTTP client for the yield-engine API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/live"
)

// DefaultTimeout bounds every request made by a client without its own http.Client.
const DefaultTimeout = 20 * time.Second

// Client fetches overviews from the backend. BaseURL includes the API prefix,
// e.g. http://localhost:8080/api.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

var _ live.OverviewSource = (*Client)(nil)

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto domain errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return generic.ErrUserNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return generic.ErrForbidden
	}
	if e.StatusCode >= 500 {
		return generic.ErrSnapshotUnavailable
	}
	return nil
}

// GetOverview fetches GET {base}/users/{id}/overview.
func (c *Client) GetOverview(ctx context.Context, userID generic.UserID) (live.OverviewPayload, error) {
	var payload live.OverviewPayload
	err := c.get(ctx, "/users/"+url.PathEscape(string(userID))+"/overview", &payload)
	return payload, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %w", path, generic.ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// errorMessage extracts {"error": "..."} from a failed response, falling back
// to the raw body.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
