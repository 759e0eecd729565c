// Package client is a Go client for the launch advisor HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// APIError is a non-2xx answer from the advisor. Detail carries the server's
// explanation when it sent one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("advisor returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("advisor returned status %d: %s", e.StatusCode, e.Detail)
}

// Decision is the answer to a decide request.
type Decision struct {
	DecisionID    string                 `json:"decision_id"`
	Verdict       domain.Verdict         `json:"verdict"`
	RiskScore     int                    `json:"risk_score"`
	Why           string                 `json:"why"`
	RuleCitations []string               `json:"rule_citations"`
	Data          domain.ObservationData `json:"data"`
}

// Client calls the advisor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the advisor at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sites lists the registered launch sites.
func (c *Client) Sites(ctx context.Context) ([]domain.LaunchSite, error) {
	var body struct {
		Sites []domain.LaunchSite `json:"sites"`
	}
	if err := c.do(ctx, http.MethodGet, "/sites", nil, &body); err != nil {
		return nil, err
	}
	return body.Sites, nil
}

// Decide requests a decision for a site code and ISO-8601 launch time.
func (c *Client) Decide(ctx context.Context, siteCode, launchTime string) (Decision, error) {
	req := map[string]string{"site_code": siteCode, "launch_time": launchTime}
	var d Decision
	if err := c.do(ctx, http.MethodPost, "/api/decide", req, &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Decision fetches a recorded decision by id.
func (c *Client) Decision(ctx context.Context, id string) (domain.DecisionResult, error) {
	var d domain.DecisionResult
	if err := c.do(ctx, http.MethodGet, "/api/decisions/"+url.PathEscape(id), nil, &d); err != nil {
		return domain.DecisionResult{}, err
	}
	return d, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&detail) == nil {
			apiErr.Detail = detail.Detail
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
