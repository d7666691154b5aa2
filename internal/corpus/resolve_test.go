// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/newsdesk/pkg/types"
)

const sampleDoc = "Battery storage costs fell sharply in 2024."

func countingReader(docs map[string]string, calls *atomic.Int32) DocumentReader {
	return ReaderFunc(func(_ context.Context, source string) (string, error) {
		calls.Add(1)
		doc, ok := docs[source]
		if !ok {
			return "", errors.New("no such document")
		}
		return doc, nil
	})
}

func TestResolve_CachedTextFastPath(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(countingReader(nil, &calls), 500, 50)

	text, err := r.Resolve(context.Background(), types.ChunkMetadata{Source: "x", Text: "verbatim"})
	require.NoError(t, err)
	assert.Equal(t, "verbatim", text)
	assert.Zero(t, calls.Load())
}

func TestResolve_SlicesOffsetsAndCaches(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(countingReader(map[string]string{"a.html": sampleDoc}, &calls), 500, 50)
	meta := types.ChunkMetadata{ChunkID: 4, Source: "a.html", StartOffset: 8, EndOffset: 21}

	first, err := r.Resolve(context.Background(), meta)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), meta)
	require.NoError(t, err)

	assert.Equal(t, "storage costs", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second resolve is served from the cache")
}

func TestResolve_RuneOffsets(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(countingReader(map[string]string{"d": "naïve café"}, &calls), 500, 50)

	text, err := r.Resolve(context.Background(), types.ChunkMetadata{Source: "d", StartOffset: 6, EndOffset: 10})
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestResolve_LegacyChunkIndex(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(countingReader(map[string]string{"d": "a b c d e f g"}, &calls), 3, 1)

	text, err := r.Resolve(context.Background(), types.ChunkMetadata{ChunkID: 0, Source: "d", ChunkIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, "c d e", text)

	_, err = r.Resolve(context.Background(), types.ChunkMetadata{ChunkID: 1, Source: "d", ChunkIndex: 7})
	assert.ErrorIs(t, err, ErrOffsetOutOfBounds)
}

func TestResolve_Errors(t *testing.T) {
	var calls atomic.Int32
	r := NewResolver(countingReader(map[string]string{"a": sampleDoc}, &calls), 500, 50)

	_, err := r.Resolve(context.Background(), types.ChunkMetadata{ChunkID: 1, Source: "missing", EndOffset: 3})
	assert.ErrorIs(t, err, ErrDocumentUnreadable)

	_, err = r.Resolve(context.Background(), types.ChunkMetadata{ChunkID: 2, Source: "a", StartOffset: 10, EndOffset: 500})
	assert.ErrorIs(t, err, ErrOffsetOutOfBounds)

	_, err = r.Resolve(context.Background(), types.ChunkMetadata{ChunkID: 3, Source: "a", StartOffset: 10, EndOffset: 5})
	assert.ErrorIs(t, err, ErrOffsetOutOfBounds)
}

func TestResolve_ContextErrorStaysInChain(t *testing.T) {
	r := NewResolver(ReaderFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}), 500, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, types.ChunkMetadata{Source: "a", EndOffset: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrDocumentUnreadable)
}

func TestDirReader(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "news"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "news", "grid.html"),
		[]byte("<p>Grid <b>upgrade</b></p><script>x()</script>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("plain\n\ttext"), 0o644))

	d, err := NewDirReader(root, 4)
	require.NoError(t, err)

	doc, err := d.ReadDocument(context.Background(), "news/grid.html")
	require.NoError(t, err)
	assert.Equal(t, "Grid upgrade", doc)

	doc, err = d.ReadDocument(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain text", doc)

	_, err = d.ReadDocument(context.Background(), "missing.html")
	assert.ErrorIs(t, err, ErrDocumentUnreadable)

	_, err = d.ReadDocument(context.Background(), "../outside.html")
	assert.ErrorIs(t, err, ErrDocumentUnreadable)
}
