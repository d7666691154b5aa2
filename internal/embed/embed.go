// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns text into unit-length embedding vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"gonum.org/v1/gonum/floats"

	"github.com/pdiddy/newsdesk/pkg/types"
)

var (
	// ErrEmptyInput is returned for blank text.
	ErrEmptyInput = errors.New("embed: input text is empty")

	// ErrNoEmbedding is returned when the provider answers without a vector.
	ErrNoEmbedding = errors.New("embed: no embedding in response")

	// ErrClosed is returned by a Lazy embedder after Close.
	ErrClosed = errors.New("embed: embedder closed")
)

// Embedder maps text to a vector. Implementations return unit-length vectors
// so cosine similarity reduces to a dot product on the stored side.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// OpenAI embeds through the OpenAI embeddings API or any compatible endpoint.
type OpenAI struct {
	sdk        openaisdk.Client
	model      string
	dimensions int
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an embeddings client from cfg. An empty model uses
// text-embedding-3-small; Dimensions 0 leaves the model default.
func NewOpenAI(cfg types.EmbeddingConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAI{
		sdk:        openaisdk.NewClient(opts...),
		model:      model,
		dimensions: cfg.Dimensions,
	}
}

// Embed returns the normalised embedding of text.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model: openaisdk.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(c.dimensions))
	}

	resp, err := c.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return Normalize(resp.Data[0].Embedding), nil
}

// Normalize returns a copy of v scaled to unit length. A zero vector is
// returned unchanged.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n := floats.Norm(out, 2)
	if n == 0 {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

// Lazy defers construction of an Embedder until first use and releases it on
// Close. Callers share one Lazy instead of reaching for a package global.
type Lazy struct {
	newFn func() (Embedder, error)

	mu     sync.Mutex
	inner  Embedder
	closed bool
}

var _ Embedder = (*Lazy)(nil)

// NewLazy wraps a constructor. It is not called until the first Embed.
func NewLazy(newFn func() (Embedder, error)) *Lazy {
	return &Lazy{newFn: newFn}
}

// Embed initialises the embedder if needed and delegates to it. A failed
// initialisation is retried on the next call.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float64, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

func (l *Lazy) get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.inner == nil {
		e, err := l.newFn()
		if err != nil {
			return nil, fmt.Errorf("initialising embedder: %w", err)
		}
		l.inner = e
	}
	return l.inner, nil
}

// Initialised reports whether the embedder has been built.
func (l *Lazy) Initialised() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner != nil
}

// Close releases the embedder, calling its Close method when it has one.
// Later calls to Embed fail with ErrClosed.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	inner := l.inner
	l.inner = nil

	if c, ok := inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
