// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAI calls the chat completions API of OpenAI or any compatible gateway.
type OpenAI struct {
	sdk   openaisdk.Client
	model string
}

var _ Port = (*OpenAI)(nil)

// OpenAIOptions configures NewOpenAI.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// NewOpenAI creates a chat completions adapter.
func NewOpenAI(o OpenAIOptions) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithMaxRetries(max(o.MaxRetries, 0)),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.Timeout))
	}
	return &OpenAI{sdk: openaisdk.NewClient(opts...), model: o.Model}
}

// Generate sends one chat completion request.
func (c *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	for _, m := range req.Prior {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, openaisdk.UserMessage(req.User))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		if isContextErr(err) {
			return "", err
		}
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: OpenAI API returned %d: %w", classifyStatus(apiErr.StatusCode), apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: calling OpenAI API: %w", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in OpenAI response", ErrRejected)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("%w: model refused: %s", ErrRejected, choice.Message.Refusal)
	}
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: response blocked by content filter", ErrRejected)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrRejected)
	}
	return choice.Message.Content, nil
}
