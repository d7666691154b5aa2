// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval ranks corpus chunks against a query and resolves the
// winners into passages.
package retrieval

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// ErrDimensionMismatch means the query and the stored vectors differ in length.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Hit is one ranked row of the store.
type Hit struct {
	Index int
	Score float64
}

// Matrix is the read-only view of a vector store that search needs.
type Matrix interface {
	VectorCount() int
	Dimension() int
	Scan(fn func(i int, vec []float64, norm float64))
}

// Searcher ranks the rows of a Matrix. Exact is the only implementation;
// an approximate index can replace it without touching callers.
type Searcher interface {
	Search(query []float64, m Matrix, topK int, floor float64) ([]Hit, error)
}

// Exact scores every row in one pass.
type Exact struct{}

// Search implements Searcher.
func (Exact) Search(query []float64, m Matrix, topK int, floor float64) ([]Hit, error) {
	return Similar(query, m, topK, floor)
}

// Similar returns up to topK rows whose cosine similarity to query is at
// least floor, best first. Rows below the floor are dropped before the list
// is truncated. Equal scores keep ascending row order. A zero-norm row or
// query scores 0.
func Similar(query []float64, m Matrix, topK int, floor float64) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", types.ErrInvalidQuery, topK)
	}
	if m.VectorCount() == 0 {
		return nil, nil
	}
	if len(query) != m.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d",
			ErrDimensionMismatch, len(query), m.Dimension())
	}

	qNorm := floats.Norm(query, 2)
	var hits []Hit
	m.Scan(func(i int, vec []float64, norm float64) {
		score := 0.0
		if qNorm != 0 && norm != 0 {
			score = max(-1, min(1, floats.Dot(query, vec)/(qNorm*norm)))
		}
		if score >= floor {
			hits = append(hits, Hit{Index: i, Score: score})
		}
	})

	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
