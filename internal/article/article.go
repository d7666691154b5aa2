// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package article renders a finished session as a Markdown article with a
// YAML front matter block and a Sources section built from inline
// [source: X] citations.
package article

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// citationPattern matches inline citations: [source: X] or [source: X; Y].
var citationPattern = regexp.MustCompile(`(?i)\[source:\s*([^\[\]]+)\]`)

// Citation is one cited source and the retrieved chunks it maps to.
type Citation struct {
	Source string `json:"source" yaml:"source"`
	Chunks []int  `json:"chunks" yaml:"chunks"`
}

// Citations is the outcome of matching an article's citations to passages.
type Citations struct {
	// Cited lists known sources in order of first citation.
	Cited []Citation `json:"cited" yaml:"cited"`

	// Unknown lists cited names that match no passage, sorted.
	Unknown []string `json:"unknown,omitempty" yaml:"unknown,omitempty"`
}

// ExtractCitations returns every cited name in text, in order, with
// repeats.
func ExtractCitations(text string) []string {
	var names []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ';' || r == ',' }) {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// Cite matches the citations in text against passages. A citation matches a
// passage by full source path or by base name.
func Cite(text string, passages []types.Passage) Citations {
	bySource := make(map[string][]int)
	byBase := make(map[string]string)
	for _, p := range passages {
		bySource[p.Source] = append(bySource[p.Source], p.ChunkID)
		byBase[path.Base(filepath.ToSlash(p.Source))] = p.Source
	}

	var out Citations
	seen := make(map[string]bool)
	unknown := make(map[string]bool)
	for _, name := range ExtractCitations(text) {
		source := name
		if _, ok := bySource[source]; !ok {
			source, ok = byBase[path.Base(filepath.ToSlash(name))]
			if !ok {
				unknown[name] = true
				continue
			}
		}
		if seen[source] {
			continue
		}
		seen[source] = true
		chunks := append([]int(nil), bySource[source]...)
		sort.Ints(chunks)
		out.Cited = append(out.Cited, Citation{Source: source, Chunks: chunks})
	}

	for name := range unknown {
		out.Unknown = append(out.Unknown, name)
	}
	sort.Strings(out.Unknown)
	return out
}

// frontMatter is the YAML header of a rendered article.
type frontMatter struct {
	Session    string             `yaml:"session"`
	Brief      string             `yaml:"brief"`
	State      types.SessionState `yaml:"state"`
	Score      float64            `yaml:"score"`
	Iteration  int                `yaml:"iteration"`
	Drafts     int                `yaml:"drafts"`
	Unresolved []string           `yaml:"unresolved_citations,omitempty"`
}

// Render writes res as Markdown to w and returns the citation report.
func Render(w io.Writer, res types.SessionResult) (Citations, error) {
	cites := Cite(res.FinalText, res.Passages)

	fm, err := yaml.Marshal(frontMatter{
		Session:    res.SessionID,
		Brief:      res.Brief,
		State:      res.State,
		Score:      res.FinalScore,
		Iteration:  res.FinalIteration,
		Drafts:     len(res.Iterations),
		Unresolved: cites.Unknown,
	})
	if err != nil {
		return cites, fmt.Errorf("marshaling front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(res.FinalText))
	b.WriteString("\n")

	if len(cites.Cited) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, c := range cites.Cited {
			ids := make([]string, len(c.Chunks))
			for i, id := range c.Chunks {
				ids[i] = strconv.Itoa(id)
			}
			fmt.Fprintf(&b, "- %s (chunks %s)\n", c.Source, strings.Join(ids, ", "))
		}
	}

	if _, err := w.Write(b.Bytes()); err != nil {
		return cites, fmt.Errorf("writing article: %w", err)
	}
	return cites, nil
}

// WriteFile renders res to path, creating parent directories. The article
// is written to a temporary file and renamed into place, so an existing
// article is never left half-written.
func WriteFile(path string, res types.SessionResult) (Citations, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Citations{}, fmt.Errorf("creating output directory: %w", err)
	}
	var buf bytes.Buffer
	cites, err := Render(&buf, res)
	if err != nil {
		return cites, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".article-*.tmp")
	if err != nil {
		return cites, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return cites, fmt.Errorf("writing %s: %w", path, errors.Join(writeErr, closeErr))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return cites, fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return cites, fmt.Errorf("renaming temp file: %w", err)
	}
	return cites, nil
}
