// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/newsdesk/internal/httputil"
	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func useClaudeServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	old := claudeAPIURL
	claudeAPIURL = srv.URL
	t.Cleanup(func() { claudeAPIURL = old })
}

func TestClaude_Generate(t *testing.T) {
	var got claudeRequest
	useClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}],"stop_reason":"end_turn"}`))
	})

	c := &Claude{APIKey: "test-key", Model: "claude-test"}
	text, err := c.Generate(context.Background(), Request{
		System: "be brief",
		User:   "write",
		Prior:  []Message{{Role: RoleUser, Content: "plan"}, {Role: RoleAssistant, Content: "ok"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", text)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, claudeMessage{Role: "user", Content: "write"}, got.Messages[2])
}

func TestClaude_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request is rejected", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"too long"}}`, ErrRejected},
		{"auth failure is unavailable", http.StatusUnauthorized, `{}`, ErrUnavailable},
		{"overload after retries is unavailable", 529, `{}`, ErrUnavailable},
		{"refusal is rejected", http.StatusOK, `{"content":[],"stop_reason":"refusal"}`, ErrRejected},
		{"empty text is rejected", http.StatusOK, `{"content":[{"type":"text","text":"  "}]}`, ErrRejected},
		{"garbage body is unavailable", http.StatusOK, `not json`, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c := &Claude{APIKey: "k", Model: "m", MaxRetries: 1}
			_, err := c.Generate(context.Background(), Request{User: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClaude_ContextCancelled(t *testing.T) {
	useClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"late"}]}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Claude{APIKey: "k", Model: "m"}).Generate(ctx, Request{User: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestOpenAI_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"drafted"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIOptions{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL})
	text, err := p.Generate(context.Background(), Request{System: "sys", User: "brief", MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "drafted", text)
	assert.Equal(t, "gpt-test", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request_error"}}`, ErrRejected},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, ErrUnavailable},
		{"content filter", http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"content_filter","message":{"role":"assistant","content":""}}]}`, ErrRejected},
		{"refusal", http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"","refusal":"no"}}]}`, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAI(OpenAIOptions{APIKey: "k", Model: "m", BaseURL: srv.URL})
			_, err := p.Generate(context.Background(), Request{User: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFallback(t *testing.T) {
	var secondaryCalls atomic.Int32
	secondary := PortFunc(func(context.Context, Request) (string, error) {
		secondaryCalls.Add(1)
		return "from secondary", nil
	})

	t.Run("primary succeeds", func(t *testing.T) {
		f := &Fallback{Primary: PortFunc(func(context.Context, Request) (string, error) { return "ok", nil }), Secondary: secondary, Log: zerolog.Nop()}
		text, err := f.Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Zero(t, secondaryCalls.Load())
	})

	t.Run("primary fails", func(t *testing.T) {
		f := &Fallback{Primary: PortFunc(func(context.Context, Request) (string, error) { return "", ErrUnavailable }), Secondary: secondary, Log: zerolog.Nop()}
		text, err := f.Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "from secondary", text)
		assert.Equal(t, int32(1), secondaryCalls.Load())
	})

	t.Run("both fail", func(t *testing.T) {
		f := &Fallback{
			Primary:   PortFunc(func(context.Context, Request) (string, error) { return "", ErrRejected }),
			Secondary: PortFunc(func(context.Context, Request) (string, error) { return "", ErrUnavailable }),
			Log:       zerolog.Nop(),
		}
		_, err := f.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrRejected)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("cancellation is not retried", func(t *testing.T) {
		before := secondaryCalls.Load()
		f := &Fallback{Primary: PortFunc(func(context.Context, Request) (string, error) { return "", context.Canceled }), Secondary: secondary, Log: zerolog.Nop()}
		_, err := f.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, before, secondaryCalls.Load())
	})
}

func TestRateLimited(t *testing.T) {
	inner := PortFunc(func(context.Context, Request) (string, error) { return "x", nil })
	_, wrapped := NewRateLimited(inner, 0).(*RateLimited)
	assert.False(t, wrapped)

	limited := NewRateLimited(inner, 1)
	_, err := limited.Generate(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Generate(ctx, Request{})
	assert.Error(t, err, "the second call within a minute must wait past the deadline")
}

func TestInstrumented(t *testing.T) {
	m := metrics.New()
	p := &Instrumented{
		Next:     PortFunc(func(context.Context, Request) (string, error) { return "", errors.New("down") }),
		Provider: "claude",
		Metrics:  m,
		Log:      zerolog.Nop(),
	}
	_, err := p.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("claude", "error")))
}

func TestNew_ProviderSelection(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(types.AIConfig{Provider: "auto"}, Deps{Log: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = New(types.AIConfig{Provider: "mystery"}, Deps{Secrets: map[string]string{SecretOpenAIKey: "k"}, Log: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrNoProvider)

	p, err := New(types.AIConfig{Provider: "auto", Model: "gpt-4o-mini"}, Deps{
		Secrets: map[string]string{SecretAnthropicKey: "ak"},
		Log:     zerolog.Nop(),
	})
	require.NoError(t, err)
	inst, ok := p.(*Instrumented)
	require.True(t, ok)
	assert.Equal(t, ProviderClaude, inst.Provider)
	assert.Equal(t, DefaultClaudeModel, inst.Next.(*Claude).Model)

	p, err = New(types.AIConfig{Provider: "openai", Fallback: "claude", RequestsPerMinute: 30}, Deps{
		Secrets: map[string]string{SecretAnthropicKey: "ak", SecretOpenAIKey: "ok"},
		Log:     zerolog.Nop(),
	})
	require.NoError(t, err)
	rl, ok := p.(*RateLimited)
	require.True(t, ok)
	_, ok = rl.next.(*Fallback)
	assert.True(t, ok)

	_, err = New(types.AIConfig{Provider: "openai", Fallback: "claude"}, Deps{
		Secrets: map[string]string{SecretOpenAIKey: "ok"},
		Log:     zerolog.Nop(),
	})
	assert.ErrorIs(t, err, ErrNoProvider)
}
