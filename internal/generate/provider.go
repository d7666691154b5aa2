// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/internal/secrets"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// Secret names looked up in the loaded secrets.
const (
	SecretAnthropicKey = "anthropic-api-key"
	SecretOpenAIKey    = "openai-api-key"
)

const (
	ProviderAuto   = "auto"
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// ErrNoProvider means no provider could be configured from the available keys.
var ErrNoProvider = errors.New("no generation provider configured")

// Deps carries what provider construction needs besides config.
type Deps struct {
	Secrets map[string]string
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// New builds the Port described by cfg: the selected provider, an optional
// fallback provider, instrumentation around each and a shared rate limit.
func New(cfg types.AIConfig, deps Deps) (Port, error) {
	primaryName, err := resolveProvider(cfg.Provider, deps.Secrets)
	if err != nil {
		return nil, err
	}
	primary, err := newProvider(primaryName, cfg, deps)
	if err != nil {
		return nil, err
	}

	port := primary
	if fb := strings.ToLower(strings.TrimSpace(cfg.Fallback)); fb != "" {
		if fb == "anthropic" {
			fb = ProviderClaude
		}
		if fb == primaryName {
			return NewRateLimited(port, cfg.RequestsPerMinute), nil
		}
		secondary, err := newProvider(fb, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("configuring fallback provider: %w", err)
		}
		port = &Fallback{Primary: primary, Secondary: secondary, Log: deps.Log}
	}

	return NewRateLimited(port, cfg.RequestsPerMinute), nil
}

// resolveProvider turns "auto" into a concrete provider name.
func resolveProvider(name string, loaded map[string]string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", ProviderAuto:
		if secrets.Get(loaded, SecretAnthropicKey) != "" {
			return ProviderClaude, nil
		}
		if secrets.Get(loaded, SecretOpenAIKey) != "" {
			return ProviderOpenAI, nil
		}
		return "", fmt.Errorf("%w: set %s or %s", ErrNoProvider, SecretAnthropicKey, SecretOpenAIKey)
	case "anthropic":
		return ProviderClaude, nil
	case ProviderClaude, ProviderOpenAI:
		return name, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrNoProvider, name)
	}
}

func newProvider(name string, cfg types.AIConfig, deps Deps) (Port, error) {
	var p Port
	switch name {
	case ProviderClaude, "anthropic":
		key := secrets.Get(deps.Secrets, SecretAnthropicKey)
		if key == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrNoProvider, SecretAnthropicKey)
		}
		model := cfg.Model
		if !strings.HasPrefix(model, "claude") {
			model = DefaultClaudeModel
		}
		name = ProviderClaude
		p = &Claude{APIKey: key, Model: model, Client: &http.Client{Timeout: cfg.Timeout}}
	case ProviderOpenAI:
		key := secrets.Get(deps.Secrets, SecretOpenAIKey)
		if key == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrNoProvider, SecretOpenAIKey)
		}
		model := cfg.Model
		if strings.HasPrefix(model, "claude") || model == "" {
			model = types.DefaultModel
		}
		p = NewOpenAI(OpenAIOptions{APIKey: key, Model: model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, MaxRetries: 2})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, name)
	}
	return &Instrumented{Next: p, Provider: name, Metrics: deps.Metrics, Log: deps.Log}, nil
}
