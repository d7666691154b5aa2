// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/sbinet/npyio"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/pdiddy/newsdesk/internal/embed"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// ErrNothingToIndex is returned when the raw directory yields no chunks.
var ErrNothingToIndex = errors.New("no indexable text found")

// Indexer builds the embedding artifacts from a directory of raw documents.
type Indexer struct {
	Reader   *DirReader
	Embedder embed.Embedder
	Log      zerolog.Logger

	ChunkTokens  int
	ChunkOverlap int

	// KeepText stores chunk text in the metadata so resolving needs no
	// document reads.
	KeepText bool

	// Workers bounds concurrent embedding calls; 0 means 4.
	Workers int
}

// IndexStats summarises one indexing run.
type IndexStats struct {
	Documents int `json:"documents" yaml:"documents"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Chunks    int `json:"chunks" yaml:"chunks"`
	Dimension int `json:"dimension" yaml:"dimension"`
}

// Index chunks and embeds every supported document under the reader's root
// and writes the matrix to vectorPath and the metadata to metadataPath.
// Documents are visited in lexical order, so rows are reproducible.
func (ix *Indexer) Index(ctx context.Context, vectorPath, metadataPath string) (IndexStats, error) {
	var stats IndexStats

	sources, err := ix.sources()
	if err != nil {
		return stats, err
	}

	var (
		vectors [][]float64
		meta    []types.ChunkMetadata
	)
	for _, src := range sources {
		doc, err := ix.Reader.ReadDocument(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			ix.Log.Warn().Err(err).Str("source", src).Msg("skipping unreadable document")
			stats.Skipped++
			continue
		}

		spans := Chunk(doc, ix.ChunkTokens, ix.ChunkOverlap)
		if len(spans) == 0 {
			stats.Skipped++
			continue
		}

		vecs, err := ix.embedSpans(ctx, spans)
		if err != nil {
			return stats, fmt.Errorf("embedding %s: %w", src, err)
		}

		for i, sp := range spans {
			m := types.ChunkMetadata{
				ChunkID:     len(meta),
				Source:      src,
				ChunkIndex:  sp.Index,
				StartOffset: sp.Start,
				EndOffset:   sp.End,
			}
			if ix.KeepText {
				m.Text = sp.Text
			}
			meta = append(meta, m)
			vectors = append(vectors, vecs[i])
		}
		stats.Documents++
		ix.Log.Debug().Str("source", src).Int("chunks", len(spans)).Msg("indexed document")
	}

	if len(vectors) == 0 {
		return stats, ErrNothingToIndex
	}
	stats.Chunks = len(vectors)
	stats.Dimension = len(vectors[0])

	if err := writeMatrix(vectorPath, vectors); err != nil {
		return stats, err
	}
	if err := writeMetadata(metadataPath, meta); err != nil {
		return stats, err
	}
	return stats, nil
}

func (ix *Indexer) sources() ([]string, error) {
	root := ix.Reader.Root()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsDocument(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	slices.Sort(out)
	return out, nil
}

func (ix *Indexer) embedSpans(ctx context.Context, spans []Span) ([][]float64, error) {
	workers := ix.Workers
	if workers <= 0 {
		workers = 4
	}

	out := make([][]float64, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sp := range spans {
		g.Go(func() error {
			v, err := ix.Embedder.Embed(gctx, sp.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", sp.Index, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return out, nil
}

func writeMatrix(path string, vectors [][]float64) error {
	rows, dim := len(vectors), len(vectors[0])
	data := make([]float64, 0, rows*dim)
	for _, v := range vectors {
		data = append(data, v...)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating vector directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := npyio.Write(f, mat.NewDense(rows, dim, data)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func writeMetadata(path string, meta []types.ChunkMetadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, m := range meta {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encoding chunk %d: %w", m.ChunkID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
