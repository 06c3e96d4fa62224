// Package sonar talks to the SonarQube HTTP API and fetches open issues.
package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tobyh/sonarfix/internal/retry"
)

// Client is a thin SonarQube API client. SonarQube authenticates with
// the token as the basic-auth username and an empty password.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	policy  retry.Policy
}

// NewClient creates a client for the given server.
func NewClient(baseURL, token string, policy retry.Policy) (*Client, error) {
	if baseURL == "" || token == "" {
		return nil, fmt.Errorf("sonarqube URL and token are required")
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  policy,
	}, nil
}

// get performs a GET against /api/<endpoint> with retry, decoding the
// JSON response into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s/api/%s?%s", c.baseURL, endpoint, params.Encode())

	return retry.Do(ctx, c.policy, "sonarqube "+endpoint, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.token, "")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sonarqube returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
