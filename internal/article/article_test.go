// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package article

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/newsdesk/pkg/types"
)

var passages = []types.Passage{
	{ChunkID: 7, Source: "news/wind.html", Text: "a"},
	{ChunkID: 2, Source: "news/wind.html", Text: "b"},
	{ChunkID: 4, Source: "solar.txt", Text: "c"},
}

func TestExtractCitations(t *testing.T) {
	text := "Capacity grew [source: wind.html]. Prices fell [Source: solar.txt; grid.md]. See [1] and [source:  ]."
	assert.Equal(t, []string{"wind.html", "solar.txt", "grid.md"}, ExtractCitations(text))
	assert.Empty(t, ExtractCitations("no citations [here]"))
}

func TestCite(t *testing.T) {
	text := "A [source: solar.txt]. B [source: wind.html]. C [source: news/wind.html]. D [source: ghost.html, alpha.md]."
	got := Cite(text, passages)

	assert.Equal(t, []Citation{
		{Source: "solar.txt", Chunks: []int{4}},
		{Source: "news/wind.html", Chunks: []int{2, 7}},
	}, got.Cited)
	assert.Equal(t, []string{"alpha.md", "ghost.html"}, got.Unknown)
}

func TestRender(t *testing.T) {
	res := types.SessionResult{
		SessionID:      "s-1",
		Brief:          "offshore wind",
		State:          types.StateAccepted,
		FinalText:      "# Wind\n\nCapacity grew [source: wind.html] and [source: missing.txt].\n",
		FinalScore:     8.5,
		FinalIteration: 1,
		Iterations:     make([]types.Iteration, 2),
		Passages:       passages,
	}

	var buf bytes.Buffer
	cites, err := Render(&buf, res)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.txt"}, cites.Unknown)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "---\n"))
	parts := strings.SplitN(out, "---\n", 3)
	require.Len(t, parts, 3)

	var fm frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "s-1", fm.Session)
	assert.Equal(t, types.StateAccepted, fm.State)
	assert.Equal(t, 8.5, fm.Score)
	assert.Equal(t, 2, fm.Drafts)
	assert.Equal(t, []string{"missing.txt"}, fm.Unresolved)

	assert.Contains(t, parts[2], "Capacity grew [source: wind.html]", "citations are left as written")
	assert.True(t, strings.HasSuffix(out, "## Sources\n\n- news/wind.html (chunks 2, 7)\n"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "article.md")
	_, err := WriteFile(path, types.SessionResult{SessionID: "s", State: types.StateExhausted, FinalText: "Body"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "state: exhausted")
	assert.NotContains(t, string(data), "## Sources")
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "article.md")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	_, err := WriteFile(path, types.SessionResult{SessionID: "s", State: types.StateAccepted, FinalText: "New body"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "New body")

	leftovers, err := filepath.Glob(filepath.Join(dir, ".article-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
