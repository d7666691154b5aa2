// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/newsdesk/internal/cache"
)

// ErrDocumentUnreadable means the origin document of a chunk could not be read.
var ErrDocumentUnreadable = errors.New("document unreadable")

// DocumentReader returns the normalised text of an origin document. Offsets
// in chunk metadata index into this text.
type DocumentReader interface {
	ReadDocument(ctx context.Context, source string) (string, error)
}

// ReaderFunc adapts a function to DocumentReader.
type ReaderFunc func(ctx context.Context, source string) (string, error)

// ReadDocument calls f.
func (f ReaderFunc) ReadDocument(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// DocumentExtensions lists the file types DirReader understands.
var DocumentExtensions = []string{".html", ".htm", ".txt", ".md"}

// DirReader reads documents from a directory. Source is a slash-separated
// path relative to the root. HTML is reduced to visible text; other files
// have their whitespace collapsed. Normalised documents are kept in a shared
// LRU so concurrent sessions read each file once.
type DirReader struct {
	root  string
	cache *cache.Cache[string]
}

// NewDirReader creates a reader over root that caches up to cacheSize
// documents. cacheSize <= 0 uses 256.
func NewDirReader(root string, cacheSize int) (*DirReader, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := cache.New[string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}
	return &DirReader{root: root, cache: c}, nil
}

// Root returns the directory the reader serves.
func (d *DirReader) Root() string {
	return d.root
}

// ReadDocument returns the normalised text of source.
func (d *DirReader) ReadDocument(ctx context.Context, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, _, err := d.cache.Get(ctx, source, d.load)
	return text, err
}

func (d *DirReader) load(_ context.Context, source string) (string, error) {
	rel := filepath.FromSlash(source)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the document root", ErrDocumentUnreadable, source)
	}

	raw, err := os.ReadFile(filepath.Join(d.root, rel))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDocumentUnreadable, err)
	}
	return Normalize(source, raw), nil
}

// Normalize converts raw document bytes to the text chunk offsets refer to.
func Normalize(name string, raw []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return HTMLToText(raw)
	default:
		return CollapseSpace(string(raw))
	}
}

// IsDocument reports whether name has a supported extension.
func IsDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range DocumentExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
