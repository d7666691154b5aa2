// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/newsdesk/internal/corpus"
	"github.com/pdiddy/newsdesk/internal/embed"
	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// Store is the embedding store as seen by the service.
type Store interface {
	Matrix
	MetadataAt(i int) (types.ChunkMetadata, error)
}

// Resolver turns chunk metadata into text.
type Resolver interface {
	Resolve(ctx context.Context, meta types.ChunkMetadata) (string, error)
}

// Service is the single retrieval entry point: text in, ranked passages out.
// It holds no per-call state and may be shared by concurrent sessions.
type Service struct {
	store    Store
	resolver Resolver
	embedder embed.Embedder
	searcher Searcher
	topK     int
	floor    float64
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for dropped hits.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics records searches and dropped hits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSearcher replaces the exact linear scan.
func WithSearcher(sr Searcher) Option {
	return func(s *Service) { s.searcher = sr }
}

// NewService wires a store, resolver and embedder. cfg supplies the default
// TopK and Floor used by Search.
func NewService(store Store, resolver Resolver, embedder embed.Embedder, cfg types.RetrievalConfig, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		embedder: embedder,
		searcher: Exact{},
		topK:     cfg.TopK,
		floor:    cfg.Floor,
		log:      zerolog.Nop(),
	}
	if s.topK <= 0 {
		s.topK = types.DefaultTopK
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs text with the configured TopK and Floor.
func (s *Service) Search(ctx context.Context, text string) ([]types.Passage, error) {
	return s.Query(ctx, types.RetrievalQuery{Text: text, TopK: s.topK, Floor: s.floor})
}

// Query embeds q.Text, ranks the store and resolves each hit. A hit whose
// text cannot be resolved is dropped and the rest are kept, so the result may
// be shorter than TopK or empty. Only invalid queries, embedding failures,
// contract violations and context cancellation are returned as errors.
func (s *Service) Query(ctx context.Context, q types.RetrievalQuery) ([]types.Passage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.searcher.Search(vec, s.store, q.TopK, q.Floor)
	if err != nil {
		return nil, fmt.Errorf("ranking chunks: %w", err)
	}

	passages := make([]types.Passage, 0, len(hits))
	for _, h := range hits {
		meta, err := s.store.MetadataAt(h.Index)
		if err != nil {
			return nil, fmt.Errorf("reading hit metadata: %w", err)
		}

		text, err := s.resolver.Resolve(ctx, meta)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Warn().Err(err).
				Int("chunk_id", meta.ChunkID).
				Str("source", meta.Source).
				Msg("dropping unresolvable passage")
			s.metrics.ResolveFailed(dropReason(err))
			continue
		}

		passages = append(passages, types.Passage{
			ChunkID: meta.ChunkID,
			Source:  meta.Source,
			Text:    text,
			Score:   h.Score,
		})
	}

	s.metrics.ObserveSearch(time.Since(start), len(passages))
	s.log.Debug().
		Int("hits", len(hits)).
		Int("passages", len(passages)).
		Dur("elapsed", time.Since(start)).
		Msg("search finished")
	return passages, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, corpus.ErrDocumentUnreadable):
		return "document_unreadable"
	case errors.Is(err, corpus.ErrOffsetOutOfBounds):
		return "offset_out_of_bounds"
	default:
		return "other"
	}
}
