// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus holds the embedding store, the document reader and the chunk
// resolver that turns store metadata back into literal text.
package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/floats"

	"github.com/pdiddy/newsdesk/pkg/types"
)

var (
	// ErrCorpusUnavailable means the embedding artifacts are missing,
	// malformed or disagree with each other.
	ErrCorpusUnavailable = errors.New("corpus unavailable")

	// ErrIndexOutOfRange is returned by the row accessors.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// maxMetadataLine bounds one JSON lines record. Records may carry cached text.
const maxMetadataLine = 16 << 20

// Store is the immutable embedding matrix plus its row-aligned metadata.
// After construction nothing mutates it, so any number of goroutines may
// read it concurrently.
type Store struct {
	dim   int
	data  []float64 // row-major, len = rows*dim
	norms []float64
	meta  []types.ChunkMetadata
}

// Load reads the matrix at vectorPath (NumPy .npy, float32 or float64,
// C order, two dimensions) and the JSON lines metadata at metadataPath.
// Every failure, including a row count mismatch, is ErrCorpusUnavailable.
func Load(vectorPath, metadataPath string) (*Store, error) {
	rows, dim, data, err := readMatrix(vectorPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorpusUnavailable, vectorPath, err)
	}

	meta, err := readMetadata(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorpusUnavailable, metadataPath, err)
	}

	if len(meta) != rows {
		return nil, fmt.Errorf("%w: matrix has %d rows but metadata has %d records",
			ErrCorpusUnavailable, rows, len(meta))
	}

	return newStore(dim, data, meta), nil
}

// NewStore builds a store from in-memory vectors. All vectors must share one
// dimension and len(meta) must equal len(vectors). ChunkIDs are reassigned to
// row positions.
func NewStore(vectors [][]float64, meta []types.ChunkMetadata) (*Store, error) {
	if len(vectors) != len(meta) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records",
			ErrCorpusUnavailable, len(vectors), len(meta))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	data := make([]float64, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d",
				ErrCorpusUnavailable, i, len(v), dim)
		}
		data = append(data, v...)
	}
	return newStore(dim, data, slices.Clone(meta)), nil
}

func newStore(dim int, data []float64, meta []types.ChunkMetadata) *Store {
	s := &Store{
		dim:   dim,
		data:  data,
		norms: make([]float64, len(meta)),
		meta:  meta,
	}
	for i := range meta {
		s.meta[i].ChunkID = i
		s.norms[i] = floats.Norm(s.row(i), 2)
	}
	return s
}

// VectorCount returns the number of rows.
func (s *Store) VectorCount() int {
	return len(s.meta)
}

// Dimension returns the vector dimension, or 0 for an empty store.
func (s *Store) Dimension() int {
	return s.dim
}

// VectorAt returns a copy of row i.
func (s *Store) VectorAt(i int) ([]float64, error) {
	if i < 0 || i >= len(s.meta) {
		return nil, fmt.Errorf("%w: vector %d of %d", ErrIndexOutOfRange, i, len(s.meta))
	}
	return slices.Clone(s.row(i)), nil
}

// MetadataAt returns the metadata of row i.
func (s *Store) MetadataAt(i int) (types.ChunkMetadata, error) {
	if i < 0 || i >= len(s.meta) {
		return types.ChunkMetadata{}, fmt.Errorf("%w: metadata %d of %d", ErrIndexOutOfRange, i, len(s.meta))
	}
	return s.meta[i], nil
}

// Scan calls fn for every row in order with the row vector and its L2 norm.
// fn must not modify or retain vec.
func (s *Store) Scan(fn func(i int, vec []float64, norm float64)) {
	for i := range s.meta {
		fn(i, s.row(i), s.norms[i])
	}
}

// Sources returns the distinct origin documents, sorted.
func (s *Store) Sources() []string {
	seen := make(map[string]struct{})
	for _, m := range s.meta {
		seen[m.Source] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	slices.Sort(out)
	return out
}

func (s *Store) row(i int) []float64 {
	return s.data[i*s.dim : (i+1)*s.dim : (i+1)*s.dim]
}

func readMatrix(path string) (rows, dim int, data []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("reading npy header: %w", err)
	}

	hdr := r.Header.Descr
	if hdr.Fortran {
		return 0, 0, nil, errors.New("fortran-ordered arrays are not supported")
	}
	if len(hdr.Shape) != 2 {
		return 0, 0, nil, fmt.Errorf("want a 2-d matrix, got shape %v", hdr.Shape)
	}
	rows, dim = hdr.Shape[0], hdr.Shape[1]

	switch hdr.Type {
	case "<f8":
		if err := r.Read(&data); err != nil {
			return 0, 0, nil, fmt.Errorf("reading float64 data: %w", err)
		}
	case "<f4":
		var f32 []float32
		if err := r.Read(&f32); err != nil {
			return 0, 0, nil, fmt.Errorf("reading float32 data: %w", err)
		}
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	default:
		return 0, 0, nil, fmt.Errorf("unsupported dtype %q", hdr.Type)
	}

	if len(data) != rows*dim {
		return 0, 0, nil, fmt.Errorf("shape %v but %d values", hdr.Shape, len(data))
	}
	return rows, dim, data, nil
}

func readMetadata(path string) ([]types.ChunkMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeMetadata(f)
}

func decodeMetadata(r io.Reader) ([]types.ChunkMetadata, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxMetadataLine)

	var out []types.ChunkMetadata
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var m types.ChunkMetadata
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m.Source == "" {
			return nil, fmt.Errorf("line %d: missing source", line)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
