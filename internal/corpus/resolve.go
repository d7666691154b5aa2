// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// ErrOffsetOutOfBounds means a chunk span does not fit inside its document.
var ErrOffsetOutOfBounds = errors.New("offset out of bounds")

// Resolver rebuilds chunk text from origin documents. Resolved spans are
// cached by chunk id for the life of the resolver, so a resolver belongs to
// exactly one Store. It is safe for concurrent use.
type Resolver struct {
	reader  DocumentReader
	size    int
	overlap int
	spans   sync.Map // int -> string
}

// NewResolver creates a resolver reading documents through reader. size and
// overlap describe how legacy records without offsets were chunked.
func NewResolver(reader DocumentReader, size, overlap int) *Resolver {
	return &Resolver{reader: reader, size: size, overlap: overlap}
}

// Resolve returns the literal text of the chunk described by meta. Cached
// text on the record wins. Failures wrap ErrDocumentUnreadable or
// ErrOffsetOutOfBounds; a context error from the reader is kept in the chain.
func (r *Resolver) Resolve(ctx context.Context, meta types.ChunkMetadata) (string, error) {
	if meta.Text != "" {
		return meta.Text, nil
	}
	if v, ok := r.spans.Load(meta.ChunkID); ok {
		return v.(string), nil
	}

	doc, err := r.reader.ReadDocument(ctx, meta.Source)
	if err != nil {
		if errors.Is(err, ErrDocumentUnreadable) {
			return "", fmt.Errorf("chunk %d: %w", meta.ChunkID, err)
		}
		return "", fmt.Errorf("chunk %d: %w: %s: %w", meta.ChunkID, ErrDocumentUnreadable, meta.Source, err)
	}

	text, err := r.slice(doc, meta)
	if err != nil {
		return "", fmt.Errorf("chunk %d of %s: %w", meta.ChunkID, meta.Source, err)
	}

	actual, _ := r.spans.LoadOrStore(meta.ChunkID, text)
	return actual.(string), nil
}

func (r *Resolver) slice(doc string, meta types.ChunkMetadata) (string, error) {
	if !meta.HasOffsets() {
		spans := Chunk(doc, r.size, r.overlap)
		if meta.ChunkIndex < 0 || meta.ChunkIndex >= len(spans) {
			return "", fmt.Errorf("%w: chunk index %d, document has %d chunks",
				ErrOffsetOutOfBounds, meta.ChunkIndex, len(spans))
		}
		return spans[meta.ChunkIndex].Text, nil
	}

	runes := []rune(doc)
	if meta.StartOffset < 0 || meta.EndOffset < meta.StartOffset || meta.EndOffset > len(runes) {
		return "", fmt.Errorf("%w: [%d, %d) in a document of %d runes",
			ErrOffsetOutOfBounds, meta.StartOffset, meta.EndOffset, len(runes))
	}
	return string(runes[meta.StartOffset:meta.EndOffset]), nil
}
