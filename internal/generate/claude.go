// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/newsdesk/internal/httputil"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// DefaultClaudeModel is used when the configured model is not a Claude model.
const DefaultClaudeModel = "claude-sonnet-4-5"

const defaultMaxTokens = 4096

// Claude calls the Claude Messages API.
type Claude struct {
	APIKey string
	Model  string
	Client *http.Client

	// MaxRetries bounds retries of transient HTTP statuses; 0 uses the
	// httputil default.
	MaxRetries int
}

var _ Port = (*Claude)(nil)

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends one Messages API request and returns the concatenated text
// blocks.
func (c *Claude) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		System:    req.System,
	}
	for _, m := range req.Prior {
		body.Messages = append(body.Messages, claudeMessage{Role: string(m.Role), Content: m.Content})
	}
	body.Messages = append(body.Messages, claudeMessage{Role: string(RoleUser), Content: req.User})

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %w", ErrRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", ErrRejected, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries)
	if err != nil {
		if isContextErr(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: calling Claude API: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		var ce claudeError
		if json.Unmarshal(raw, &ce) == nil && ce.Error.Message != "" {
			msg = ce.Error.Type + ": " + ce.Error.Message
		}
		return "", fmt.Errorf("%w: Claude API returned %d: %s", classifyStatus(resp.StatusCode), resp.StatusCode, msg)
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("%w: decoding Claude response: %w", ErrUnavailable, err)
	}
	if cResp.StopReason == "refusal" {
		return "", fmt.Errorf("%w: Claude refused the request", ErrRejected)
	}

	var sb strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text content in Claude API response", ErrRejected)
	}
	return sb.String(), nil
}
