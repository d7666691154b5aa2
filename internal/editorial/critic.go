// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package editorial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/newsdesk/internal/generate"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// ErrMalformedCritique means the reviewer answered without a usable JSON
// verdict. It is wrapped together with generate.ErrRejected so the step is
// retried like any rejected generation.
var ErrMalformedCritique = errors.New("malformed critique")

// Critic scores a draft.
type Critic struct {
	Port   generate.Port
	Prompt *Prompt
}

// Critique asks the reviewer for a verdict on draft and parses it.
func (c *Critic) Critique(ctx context.Context, draft string) (types.Critique, error) {
	text, err := run(ctx, c.Port, c.Prompt, map[string]any{"Draft": draft}, 0)
	if err != nil {
		return types.Critique{}, fmt.Errorf("critiquing draft: %w", err)
	}
	return ParseCritique(text)
}

type critiqueJSON struct {
	Comments struct {
		Strengths    flexList `json:"strengths"`
		Improvements flexList `json:"improvements"`
	} `json:"comments"`
	Note  flexScore `json:"note"`
	Score flexScore `json:"score"`
}

// ParseCritique extracts the verdict from the first "{" to the last "}" of
// raw. Comments may be a string or a list of strings; the score may be a
// number or a numeric string under "note" or "score" and is clamped to
// [0, 10].
func ParseCritique(raw string) (types.Critique, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return types.Critique{}, fmt.Errorf("%w: %w: no JSON object in response", generate.ErrRejected, ErrMalformedCritique)
	}

	var v critiqueJSON
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return types.Critique{}, fmt.Errorf("%w: %w: %w", generate.ErrRejected, ErrMalformedCritique, err)
	}

	score := v.Note
	if !score.set {
		score = v.Score
	}
	if !score.set {
		return types.Critique{}, fmt.Errorf("%w: %w: missing score", generate.ErrRejected, ErrMalformedCritique)
	}

	return types.Critique{
		Score:        min(10, max(0, score.value)),
		Strengths:    []string(v.Comments.Strengths),
		Improvements: []string(v.Comments.Improvements),
		Raw:          raw,
	}, nil
}

// flexList accepts a JSON string (split into bullet lines) or a list of strings.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = cleanItems(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("want string or list of strings: %w", err)
	}
	*f = cleanItems(strings.Split(s, "\n"))
	return nil
}

func cleanItems(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.TrimSpace(item)
		item = strings.TrimLeft(item, "-*• ")
		item = trimNumbering(item)
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// trimNumbering drops a leading "1." or "2)" list marker.
func trimNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[i+1:]
	}
	return s
}

// flexScore accepts a JSON number or a numeric string such as "7.5" or "7.5/10".
type flexScore struct {
	value float64
	set   bool
}

func (f *flexScore) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.value, f.set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("want number or numeric string: %w", err)
	}
	s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("score %q is not a finite number", s)
	}
	f.value, f.set = n, true
	return nil
}
