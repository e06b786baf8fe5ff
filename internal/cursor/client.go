// Package cursor is an HTTP client for the Cursor background-agents API.
package cursor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cbarrett/foreman/internal/config"
	"github.com/cbarrett/foreman/internal/dispatch"
)

// Client launches Cursor agents. It implements dispatch.Launcher.
type Client struct {
	endpoint      string
	webhookSecret string
	httpClient    *http.Client
}

// New creates a Client from the Cursor section of the configuration.
func New(cfg config.CursorConfig) *Client {
	return &Client{
		endpoint:      cfg.Endpoint,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// launchPayload mirrors the Cursor agents API request shape.
type launchPayload struct {
	Prompt  promptSpec  `json:"prompt"`
	Source  sourceSpec  `json:"source"`
	Target  targetSpec  `json:"target"`
	Webhook webhookSpec `json:"webhook"`
}

type promptSpec struct {
	Text string `json:"text"`
}

type sourceSpec struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
}

type targetSpec struct {
	BranchName   string `json:"branchName"`
	AutoCreatePR bool   `json:"autoCreatePr"`
}

type webhookSpec struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

// launchResponse carries the fields we read from the API response.
type launchResponse struct {
	ID      string `json:"id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Launch starts a background agent for the request and returns its ID.
func (c *Client) Launch(ctx context.Context, req dispatch.LaunchRequest) (string, error) {
	if req.APIKey == "" {
		return "", fmt.Errorf("cursor: api key is required")
	}
	if req.Prompt == "" {
		return "", fmt.Errorf("cursor: prompt is required")
	}
	if req.RepoURL == "" {
		return "", fmt.Errorf("cursor: repository URL is required")
	}
	if req.BaseBranch == "" {
		return "", fmt.Errorf("cursor: base branch is required")
	}
	if req.BranchName == "" {
		return "", fmt.Errorf("cursor: branch name is required")
	}
	if req.WebhookURL == "" {
		return "", fmt.Errorf("cursor: webhook URL is required")
	}

	payload := launchPayload{
		Prompt: promptSpec{Text: req.Prompt},
		Source: sourceSpec{Repository: req.RepoURL, Ref: req.BaseBranch},
		Target: targetSpec{BranchName: req.BranchName, AutoCreatePR: true},
		Webhook: webhookSpec{
			URL:    req.WebhookURL,
			Secret: c.webhookSecret,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cursor: marshal launch payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("cursor: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("cursor: launch agent: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cursor: read response: %w", err)
	}

	var parsed launchResponse
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("cursor: parse response: %w", jsonErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = string(data)
		}
		return "", fmt.Errorf("cursor: launch request failed (%d): %s", resp.StatusCode, msg)
	}

	return parsed.ID, nil
}
