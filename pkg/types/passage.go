// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ChunkMetadata describes one row of the embedding matrix.
type ChunkMetadata struct {
	// ChunkID is the row position in the matrix. It is assigned at load time.
	ChunkID int `json:"chunk_id" yaml:"chunk_id"`

	// Source is the origin document identifier, a path relative to the raw directory.
	Source string `json:"source" yaml:"source"`

	// ChunkIndex is the position of the chunk within its document.
	ChunkIndex int `json:"chunk_index" yaml:"chunk_index"`

	// StartOffset and EndOffset delimit the chunk in the normalised document
	// text, in runes, as a half-open range. Both zero means the record predates
	// offsets and the span is found by re-chunking.
	StartOffset int `json:"start_offset,omitempty" yaml:"start_offset,omitempty"`
	EndOffset   int `json:"end_offset,omitempty" yaml:"end_offset,omitempty"`

	// Text is the cached chunk text, when the artifact carries it.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// HasOffsets reports whether the record carries an explicit span.
func (m ChunkMetadata) HasOffsets() bool {
	return m.StartOffset != 0 || m.EndOffset != 0
}

// Passage is a retrieved, scored span of source text.
type Passage struct {
	ChunkID int     `json:"chunk_id" yaml:"chunk_id"`
	Source  string  `json:"source" yaml:"source"`
	Text    string  `json:"text" yaml:"text"`
	Score   float64 `json:"score" yaml:"score"`
}

// RetrievalQuery is a single search request.
type RetrievalQuery struct {
	Text  string  `json:"text" yaml:"text"`
	TopK  int     `json:"top_k" yaml:"top_k"`
	Floor float64 `json:"floor" yaml:"floor"`
}

// ErrInvalidQuery is returned for queries that violate their bounds.
var ErrInvalidQuery = errors.New("invalid retrieval query")

// Validate checks TopK >= 1 and Floor in [-1, 1].
func (q RetrievalQuery) Validate() error {
	if q.TopK < 1 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidQuery, q.TopK)
	}
	if q.Floor < -1 || q.Floor > 1 {
		return fmt.Errorf("%w: floor %v outside [-1, 1]", ErrInvalidQuery, q.Floor)
	}
	return nil
}
