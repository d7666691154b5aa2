// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLToText reduces an HTML document to its visible text. Script and style
// bodies are dropped, entities are unescaped by the tokenizer and whitespace
// runs collapse to a single space.
func HTMLToText(src []byte) string {
	z := html.NewTokenizer(bytes.NewReader(src))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return CollapseSpace(b.String())
		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if isHidden(z) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Token is a lowercased word together with its rune span in the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into maximal runs of ASCII letters and digits. Spans
// are rune offsets into text, half-open.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	var cur strings.Builder

	pos := 0
	for _, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = pos
				cur.Reset()
			}
			cur.WriteRune(unicode.ToLower(r))
		} else if start >= 0 {
			tokens = append(tokens, Token{Text: cur.String(), Start: start, End: pos})
			start = -1
		}
		pos++
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: cur.String(), Start: start, End: pos})
	}
	return tokens
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Span is one chunk window over a document.
type Span struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunk splits text into windows of size tokens that overlap by overlap
// tokens. A span runs from the first rune of its first token to the last rune
// of its last token. Text with no tokens yields no spans.
func Chunk(text string, size, overlap int) []Span {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	runes := []rune(text)

	var spans []Span
	for first := 0; first < len(tokens); first += step {
		last := min(first+size, len(tokens)) - 1
		s := Span{
			Index: len(spans),
			Start: tokens[first].Start,
			End:   tokens[last].End,
		}
		s.Text = string(runes[s.Start:s.End])
		spans = append(spans, s)
		if last == len(tokens)-1 {
			break
		}
	}
	return spans
}
