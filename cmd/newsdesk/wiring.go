// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/pdiddy/newsdesk/internal/corpus"
	"github.com/pdiddy/newsdesk/internal/embed"
	"github.com/pdiddy/newsdesk/internal/generate"
	"github.com/pdiddy/newsdesk/internal/logger"
	"github.com/pdiddy/newsdesk/internal/retrieval"
	"github.com/pdiddy/newsdesk/internal/secrets"
	"github.com/pdiddy/newsdesk/pkg/types"
)

const (
	secretEmbeddingKey = "embedding-api-key"
)

// newEmbedder returns the lazily created query embedder. The caller closes it.
func newEmbedder() *embed.Lazy {
	return embed.NewLazy(func() (embed.Embedder, error) {
		cfg := appConfig.Embedding
		if cfg.APIKey == "" {
			cfg.APIKey = secrets.Get(loadedSecrets, secretEmbeddingKey)
		}
		if cfg.APIKey == "" {
			cfg.APIKey = secrets.Get(loadedSecrets, generate.SecretOpenAIKey)
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no embedding key: set %s or %s", secretEmbeddingKey, generate.SecretOpenAIKey)
		}
		return embed.NewOpenAI(cfg), nil
	})
}

// openRetrieval loads the corpus and builds the retrieval service on top of
// it.
func openRetrieval(embedder embed.Embedder, rc types.RetrievalConfig) (*retrieval.Service, *corpus.Store, error) {
	cc := appConfig.Corpus
	store, err := corpus.Load(cc.EmbeddingsPath, cc.MetadataPath)
	if err != nil {
		return nil, nil, err
	}
	reader, err := corpus.NewDirReader(cc.RawDir, cc.DocumentCacheSize)
	if err != nil {
		return nil, nil, err
	}
	resolver := corpus.NewResolver(reader, cc.ChunkTokens, cc.ChunkOverlap)

	svc := retrieval.NewService(store, resolver, embedder, rc,
		retrieval.WithLogger(logger.Component(appLog, "retrieval")),
		retrieval.WithMetrics(appMetrics),
	)
	appLog.Debug().
		Int("vectors", store.VectorCount()).
		Int("dimension", store.Dimension()).
		Msg("corpus loaded")
	return svc, store, nil
}

// newPort builds the generation port from the AI configuration.
func newPort() (generate.Port, error) {
	return generate.New(appConfig.AI, generate.Deps{
		Secrets: loadedSecrets,
		Metrics: appMetrics,
		Log:     logger.Component(appLog, "generate"),
	})
}
